package engine

import (
	"fmt"

	"github.com/confessbot/internal/telegram"
)

// Categories a confession can be filed under. Fixed set; the category button
// tags carry the display name verbatim.
var Categories = []string{
	"💔 Love",
	"💼 Work",
	"👨‍👩‍👧 Family",
	"😔 Mental Health",
	"😜 Funny",
	"🎲 Random",
}

func button(text, data string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, CallbackData: data}
}

// categoryKeyboard lays out the category choices two per row with a cancel
// row at the bottom.
func categoryKeyboard() *telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton
	for i := 0; i < len(Categories); i += 2 {
		row := []telegram.InlineKeyboardButton{
			button(Categories[i], "category:"+Categories[i]),
		}
		if i+1 < len(Categories) {
			row = append(row, button(Categories[i+1], "category:"+Categories[i+1]))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []telegram.InlineKeyboardButton{
		button("❌ Cancel Confession", "cancel_confession"),
	})
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func cancelKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{button("❌ Cancel Confession", "cancel_confession")},
	}}
}

// confessionKeyboard builds the public post's interactive controls from the
// current aggregate. A freshly published post uses id 0 and a zero aggregate
// until the store has assigned the real id.
func confessionKeyboard(confessionID int64, agg Aggregate) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{
			button(fmt.Sprintf("👍 Relatable (%d)", agg.Relatable), fmt.Sprintf("react:relatable:%d", confessionID)),
			button(fmt.Sprintf("❤️ Support (%d)", agg.Support), fmt.Sprintf("react:support:%d", confessionID)),
		},
		{
			button(fmt.Sprintf("💬 Comments (%d)", agg.Comments), fmt.Sprintf("viewcomments:%d", confessionID)),
			button("➕ Add Comment", fmt.Sprintf("givecomment:%d", confessionID)),
		},
	}}
}

func leaderboardKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{
			button("🏆 Weekly", "leaderboard:week"),
			button("📅 Daily", "leaderboard:day"),
		},
	}}
}

func myConfessionsKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{button("Today's Confessions", "my_confessions:day")},
		{button("This Week's Confessions", "my_confessions:week")},
		{button("All My Confessions", "my_confessions:all")},
	}}
}
