package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/shared/config"
	"github.com/orris-inc/keygate/internal/shared/constants"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// Telegram allows about 30 messages per second per bot
	sendRatePerSecond = 25
	sendBurst         = 5
	maxRetryAfter     = 30 * time.Second
)

// BotService is a Bot API client. Outbound calls share one token bucket.
type BotService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logger.Interface
}

// BotOption customises a BotService.
type BotOption func(*BotService)

// WithAPIBase points the client at another Bot API server.
func WithAPIBase(base string) BotOption {
	return func(s *BotService) { s.baseURL = base }
}

func WithHTTPClient(c *http.Client) BotOption {
	return func(s *BotService) { s.httpClient = c }
}

func NewBotService(cfg config.TelegramConfig, log logger.Interface, opts ...BotOption) *BotService {
	s := &BotService{
		baseURL:    defaultAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(sendRatePerSecond), sendBurst),
		logger:     log.Named("telegram"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseURL = fmt.Sprintf("%s/bot%s", s.baseURL, cfg.BotToken)
	return s
}

var _ messaging.Notifier = (*BotService)(nil)

// Send delivers a reply to a private chat: text first, with the keyboard on the last chunk,
// then each attachment as a photo.
func (s *BotService) Send(ctx context.Context, chatID int64, reply messaging.Reply) error {
	if reply.Text != "" {
		chunks := splitText(reply.Text, maxMessageLength)
		for i, chunk := range chunks {
			var kb *InlineKeyboardMarkup
			if i == len(chunks)-1 {
				kb = keyboardFor(reply.Buttons)
			}
			if err := s.SendMessage(ctx, chatID, chunk, kb); err != nil {
				return err
			}
		}
	}
	for _, a := range reply.Attachments {
		if err := s.SendPhoto(ctx, chatID, a.Name, a.PNG, a.Caption); err != nil {
			return err
		}
	}
	return nil
}

func (s *BotService) SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) error {
	body := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if keyboard != nil {
		body["reply_markup"] = keyboard
	}
	return s.call(ctx, "sendMessage", body, nil)
}

// SendPhoto uploads a PNG with multipart/form-data.
func (s *BotService) SendPhoto(ctx context.Context, chatID int64, name string, png []byte, caption string) error {
	if name == "" {
		name = "key.png"
	}
	return s.withRetry(ctx, "sendPhoto", func() error {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("chat_id", strconv.FormatInt(chatID, 10))
		if caption != "" {
			_ = w.WriteField("caption", caption)
		}
		part, err := w.CreateFormFile("photo", name)
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(png); err != nil {
			return fmt.Errorf("failed to write photo: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to close multipart writer: %w", err)
		}
		return s.do(ctx, "sendPhoto", w.FormDataContentType(), &buf, nil)
	})
}

// AnswerCallbackQuery stops the client spinner. A non-empty text shows a toast.
func (s *BotService) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	body := map[string]any{"callback_query_id": callbackQueryID}
	if text != "" {
		body["text"] = text
	}
	return s.call(ctx, "answerCallbackQuery", body, nil)
}

func (s *BotService) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	body := map[string]any{
		"url":             webhookURL,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		body["secret_token"] = secret
	}
	return s.call(ctx, "setWebhook", body, nil)
}

func (s *BotService) DeleteWebhook(ctx context.Context) error {
	return s.call(ctx, "deleteWebhook", map[string]any{}, nil)
}

// SetMyCommands publishes the command menu.
func (s *BotService) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return s.call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil)
}

// GetUpdates long-polls for updates. It bypasses the send limiter.
func (s *BotService) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	body := map[string]any{
		"timeout":         timeout,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		body["offset"] = offset
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout+10)*time.Second)
	defer cancel()

	var updates []Update
	if err := s.do(reqCtx, "getUpdates", constants.ContentTypeJSON, bytes.NewReader(payload), &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (s *BotService) call(ctx context.Context, method string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return s.withRetry(ctx, method, func() error {
		return s.do(ctx, method, constants.ContentTypeJSON, bytes.NewReader(payload), out)
	})
}

// withRetry waits for the limiter and retries once when Telegram asks to back off.
func (s *BotService) withRetry(ctx context.Context, method string, send func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	err := send()
	if !IsRetryAfter(err) {
		return err
	}

	wait := time.Duration(GetRetryAfter(err)) * time.Second
	if wait > maxRetryAfter {
		return err
	}
	s.logger.Warnw("telegram rate limited, retrying", "method", method, "retry_after", wait)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	return send()
}

func (s *BotService) do(ctx context.Context, method, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+method, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(constants.HeaderContentType, contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}
	defer resp.Body.Close()

	var result apiResponse[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !result.OK {
		apiErr := &APIError{ErrorCode: result.ErrorCode, Description: result.Description}
		if apiErr.ErrorCode == 0 {
			apiErr.ErrorCode = resp.StatusCode
		}
		if result.Parameters != nil {
			apiErr.RetryAfter = result.Parameters.RetryAfter
		}
		return apiErr
	}
	if out != nil && len(result.Result) > 0 {
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}
