// Package messaging defines the transport-neutral replies produced by the flows
// and the outbound notifier the background jobs use.
package messaging

import "context"

// Button is an inline action. Data is the callback payload; URL buttons open a link instead.
type Button struct {
	Text string
	Data string
	URL  string
}

// Attachment is a binary payload delivered with the message, such as a QR code.
type Attachment struct {
	Name    string
	Caption string
	PNG     []byte
}

type Reply struct {
	Text        string
	Buttons     [][]Button
	Attachments []Attachment
}

func Text(text string) Reply {
	return Reply{Text: text}
}

// Row is a convenience for building one keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

func Callback(text, data string) Button {
	return Button{Text: text, Data: data}
}

func Link(text, url string) Button {
	return Button{Text: text, URL: url}
}

// Notifier delivers unsolicited messages to an actor.
type Notifier interface {
	Send(ctx context.Context, actorID int64, reply Reply) error
}
