package admin

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	pagePrefix    = "admin_page_"
	selectPrefix  = "admin_select_"
	confirmPrefix = "admin_confirm_"
	abortPayload  = "admin_abort"
)

type Action string

const (
	ActionPage    Action = "page"
	ActionSelect  Action = "select"
	ActionConfirm Action = "confirm"
	ActionAbort   Action = "abort"
)

// Callback is a parsed admin button payload. N is the page number or entitlement id.
type Callback struct {
	Action Action
	N      uint64
}

func pagePayload(page int) string   { return fmt.Sprintf("%s%d", pagePrefix, page) }
func selectPayload(id uint) string  { return fmt.Sprintf("%s%d", selectPrefix, id) }
func confirmPayload(id uint) string { return fmt.Sprintf("%s%d", confirmPrefix, id) }

// IsCallback reports whether data belongs to the admin flow.
func IsCallback(data string) bool {
	return strings.HasPrefix(data, "admin_")
}

// ParseCallback returns false for malformed admin payloads.
func ParseCallback(data string) (Callback, bool) {
	if data == abortPayload {
		return Callback{Action: ActionAbort}, true
	}
	for prefix, action := range map[string]Action{
		pagePrefix:    ActionPage,
		selectPrefix:  ActionSelect,
		confirmPrefix: ActionConfirm,
	} {
		rest, ok := strings.CutPrefix(data, prefix)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(rest, 10, 64)
		if err != nil || n == 0 {
			return Callback{}, false
		}
		return Callback{Action: action, N: n}, true
	}
	return Callback{}, false
}
