package telegram

import "strconv"

// ChatID addresses a chat in Bot API calls. The API accepts either a numeric
// id or a @channelusername, so it is carried as a string either way.
type ChatID string

// Chat builds a ChatID from a numeric chat or user id.
func Chat(id int64) ChatID {
	return ChatID(strconv.FormatInt(id, 10))
}

// User is a Telegram account.
type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

// ChatInfo identifies the chat a message belongs to.
type ChatInfo struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Username string `json:"username"`
}

// Message is an inbound or sent message.
type Message struct {
	MessageID int64    `json:"message_id"`
	From      *User    `json:"from"`
	Chat      ChatInfo `json:"chat"`
	Text      string   `json:"text"`
	ReplyTo   *Message `json:"reply_to_message"`
}

// CallbackQuery is a button press on an inline keyboard.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// Update is one item from getUpdates or a webhook delivery.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// InlineKeyboardButton is one button of an inline keyboard. Exactly one of
// CallbackData or URL should be set.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboardMarkup is the interactive controls attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// SendOptions are the optional knobs for sending or editing a message.
type SendOptions struct {
	ParseMode             string
	ReplyToMessageID      int64
	DisableWebPagePreview bool
	ReplyMarkup           *InlineKeyboardMarkup
}
