// Package telegram is a thin client for the Telegram Bot API. Only the
// handful of methods the bot actually uses are implemented; the official
// wire format is simple enough that a small typed client over net/http
// beats carrying an SDK.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.telegram.org"

// Client calls the Bot API. Outbound calls share a rate limiter so a burst
// of notifications cannot trip Telegram's flood control.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter

	meMu sync.Mutex
	me   *User // cached getMe result, set on first use
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		client:  &http.Client{Timeout: 65 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(25), 5),
	}
}

// NewClientWithBaseURL is for tests pointing the client at a fake server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call performs one Bot API method invocation and decodes the result into
// out (which may be nil when the result is irrelevant).
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: execute %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return &APIError{Code: apiResp.ErrorCode, Description: apiResp.Description}
	}

	if out != nil {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

type sendMessagePayload struct {
	ChatID                ChatID                `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	ReplyToMessageID      int64                 `json:"reply_to_message_id,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendMessage sends a text message and returns the message as posted.
func (c *Client) SendMessage(ctx context.Context, chat ChatID, text string, opts *SendOptions) (*Message, error) {
	payload := sendMessagePayload{ChatID: chat, Text: text}
	if opts != nil {
		payload.ParseMode = opts.ParseMode
		payload.ReplyToMessageID = opts.ReplyToMessageID
		payload.DisableWebPagePreview = opts.DisableWebPagePreview
		payload.ReplyMarkup = opts.ReplyMarkup
	}

	var sent Message
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

type editTextPayload struct {
	ChatID                ChatID                `json:"chat_id"`
	MessageID             int64                 `json:"message_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText replaces the text (and markup) of a sent message.
func (c *Client) EditMessageText(ctx context.Context, chat ChatID, messageID int64, text string, opts *SendOptions) error {
	payload := editTextPayload{ChatID: chat, MessageID: messageID, Text: text}
	if opts != nil {
		payload.ParseMode = opts.ParseMode
		payload.DisableWebPagePreview = opts.DisableWebPagePreview
		payload.ReplyMarkup = opts.ReplyMarkup
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

type editMarkupPayload struct {
	ChatID      ChatID                `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditReplyMarkup replaces the inline keyboard of a sent message.
func (c *Client) EditReplyMarkup(ctx context.Context, chat ChatID, messageID int64, markup *InlineKeyboardMarkup) error {
	return c.call(ctx, "editMessageReplyMarkup", editMarkupPayload{
		ChatID:      chat,
		MessageID:   messageID,
		ReplyMarkup: markup,
	}, nil)
}

type answerCallbackPayload struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// AnswerCallback acknowledges a button press, optionally with a toast or a
// blocking alert.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackPayload{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	}, nil)
}

// Me resolves the bot's own identity, used for deep-link construction.
// The result is cached; handlers are expected to call this often.
func (c *Client) Me(ctx context.Context) (*User, error) {
	c.meMu.Lock()
	defer c.meMu.Unlock()
	if c.me != nil {
		return c.me, nil
	}
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	c.me = &me
	return c.me, nil
}

type getUpdatesPayload struct {
	Offset  int64 `json:"offset,omitempty"`
	Timeout int   `json:"timeout"`
}

// GetUpdates long-polls for the next batch of updates.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", getUpdatesPayload{
		Offset:  offset,
		Timeout: int(timeout.Seconds()),
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}
