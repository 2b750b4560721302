package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confessbot/internal/identity"
	"github.com/confessbot/internal/store"
	"github.com/confessbot/internal/telegram"
)

func testCodec(t *testing.T) *identity.Codec {
	t.Helper()
	codec, err := identity.NewCodec(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32)))
	require.NoError(t, err)
	return codec
}

func newTestEngine(t *testing.T, now func() time.Time) (*Engine, *fakeStore, *fakeMessenger) {
	t.Helper()
	st := newFakeStore()
	msg := newFakeMessenger()
	eng := New(Params{
		Store:     st,
		Messenger: msg,
		Codec:     testCodec(t),
		Channel:   "@confessions",
		Now:       now,
	})
	return eng, st, msg
}

func privateMessage(userID int64, text string) *telegram.Update {
	return &telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: userID},
		Chat:      telegram.ChatInfo{ID: userID, Type: "private"},
		Text:      text,
	}}
}

func callbackOn(userID int64, data string, chatID, messageID int64) *telegram.Update {
	return &telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb-1",
		From: telegram.User{ID: userID},
		Data: data,
		Message: &telegram.Message{
			MessageID: messageID,
			Chat:      telegram.ChatInfo{ID: chatID, Type: "private"},
		},
	}}
}

// seedConfession inserts a confession directly, as if already published.
func seedConfession(t *testing.T, st *fakeStore, authorID int64, text string) int64 {
	t.Helper()
	id, err := st.CreateConfession(context.Background(), &store.Confession{
		AuthorID:         authorID,
		AuthorToken:      "token",
		ChannelChatID:    fakeChannelChatID,
		ChannelMessageID: 77,
		Category:         "🎲 Random",
		Text:             text,
	})
	require.NoError(t, err)
	return id
}

// runConfessionFlow drives /confess plus a category pick so the user is
// ready to type confession text.
func runConfessionFlow(t *testing.T, eng *Engine, userID int64) {
	t.Helper()
	ctx := context.Background()
	eng.HandleUpdate(ctx, privateMessage(userID, "/confess"))
	require.Equal(t, StageAwaitingCategory, eng.sessions.Get(userID).Stage)
	eng.HandleUpdate(ctx, callbackOn(userID, "category:💔 Love", userID, 10))
	require.Equal(t, StageAwaitingConfessionText, eng.sessions.Get(userID).Stage)
}

func TestConfessionTooShortStaysInFlow(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	runConfessionFlow(t, eng, 10)

	eng.HandleUpdate(context.Background(), privateMessage(10, "abcd"))

	assert.Equal(t, StageAwaitingConfessionText, eng.sessions.Get(10).Stage)
	assert.Empty(t, st.confessions)
	assert.Contains(t, msg.lastSent().Text, "too short")
}

func TestConfessionFiveRunesSucceeds(t *testing.T) {
	eng, st, _ := newTestEngine(t, nil)
	runConfessionFlow(t, eng, 10)

	eng.HandleUpdate(context.Background(), privateMessage(10, "abcde"))

	assert.Equal(t, StageIdle, eng.sessions.Get(10).Stage)
	require.Len(t, st.confessions, 1)
}

func TestConfessionPublishAndRetag(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	runConfessionFlow(t, eng, 10)

	eng.HandleUpdate(context.Background(), privateMessage(10, "i still sleep with a plushie"))

	// Persisted with category, sanitized text and a recoverable author token.
	require.Len(t, st.confessions, 1)
	saved := st.confessions[1]
	assert.Equal(t, "💔 Love", saved.Category)
	assert.Equal(t, "i still sleep with a plushie", saved.Text)
	assert.Equal(t, int64(10), saved.AuthorID)
	recovered, err := testCodec(t).Decrypt(saved.AuthorToken)
	require.NoError(t, err)
	assert.Equal(t, int64(10), recovered)

	// Published to the channel with zeroed controls first.
	channelPosts := msg.sentTo(telegram.ChatID("@confessions"))
	require.Len(t, channelPosts, 1)
	assert.Contains(t, channelPosts[0].Text, "💔 Love Anonymous Confession")
	require.NotNil(t, channelPosts[0].Opts.ReplyMarkup)
	assert.Equal(t, "react:relatable:0", channelPosts[0].Opts.ReplyMarkup.InlineKeyboard[0][0].CallbackData)

	// Controls retagged with the assigned id.
	require.Len(t, msg.Markups, 1)
	assert.Equal(t, "react:relatable:1", msg.Markups[0].Markup.InlineKeyboard[0][0].CallbackData)

	// Author got the share link.
	assert.Contains(t, msg.lastSent().Text, "https://t.me/confessions/")
}

func TestConfessionTextIsSanitized(t *testing.T) {
	eng, st, _ := newTestEngine(t, nil)
	runConfessionFlow(t, eng, 10)

	eng.HandleUpdate(context.Background(), privateMessage(10, "find me at http://example.com tonight"))

	require.Len(t, st.confessions, 1)
	assert.NotContains(t, st.confessions[1].Text, "http://")
	assert.Contains(t, st.confessions[1].Text, "[redacted]")
}

func TestCooldownBlocksSecondConfession(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, st, msg := newTestEngine(t, func() time.Time { return now })

	id := seedConfession(t, st, 10, "first one")
	st.confessions[id].CreatedAt = now.Add(-2 * time.Minute)

	eng.HandleUpdate(context.Background(), privateMessage(10, "/confess"))

	assert.Equal(t, StageIdle, eng.sessions.Get(10).Stage)
	assert.Contains(t, msg.lastSent().Text, "Please wait 3m 0s")

	// After the window has elapsed the author is allowed again.
	now = now.Add(5 * time.Minute)
	eng.HandleUpdate(context.Background(), privateMessage(10, "/confess"))
	assert.Equal(t, StageAwaitingCategory, eng.sessions.Get(10).Stage)
}

func TestCooldownRemaining(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, st, _ := newTestEngine(t, func() time.Time { return now })

	// No prior confession: always allowed.
	remaining, err := eng.cooldownRemaining(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	id := seedConfession(t, st, 10, "first one")
	st.confessions[id].CreatedAt = now.Add(-2 * time.Minute)

	remaining, err = eng.cooldownRemaining(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, remaining)
}

func TestReactionNotifiesAuthor(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")

	eng.HandleUpdate(context.Background(), callbackOn(20, fmt.Sprintf("react:relatable:%d", id), fakeChannelChatID, 77))

	assert.Len(t, st.reactions, 1)
	require.NotEmpty(t, msg.Answers)
	assert.Equal(t, "Thanks for reacting!", msg.Answers[0].Text)

	// Controls refreshed with the recomputed aggregate.
	require.Len(t, msg.Markups, 1)
	assert.Contains(t, msg.Markups[0].Markup.InlineKeyboard[0][0].Text, "(1)")

	// Exactly one private notification to the author.
	notifications := msg.sentTo(telegram.Chat(10))
	require.Len(t, notifications, 1)
	assert.Contains(t, notifications[0].Text, fmt.Sprintf("#%d", id))
	assert.Contains(t, notifications[0].Text, "reacted")
}

func TestDuplicateReactionRejected(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")
	data := fmt.Sprintf("react:support:%d", id)

	eng.HandleUpdate(context.Background(), callbackOn(20, data, fakeChannelChatID, 77))
	eng.HandleUpdate(context.Background(), callbackOn(20, data, fakeChannelChatID, 77))

	// Second attempt rejected by the store, not overwritten.
	assert.Len(t, st.reactions, 1)
	require.Len(t, msg.Answers, 2)
	assert.Equal(t, "You've already reacted with this type.", msg.Answers[1].Text)

	// Aggregate reflects exactly one: only the first press refreshed controls.
	require.Len(t, msg.Markups, 1)
	assert.Contains(t, msg.Markups[0].Markup.InlineKeyboard[0][1].Text, "(1)")
}

func TestReactionOnPlaceholderID(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)

	eng.HandleUpdate(context.Background(), callbackOn(20, "react:relatable:0", fakeChannelChatID, 77))

	assert.Empty(t, st.reactions)
	require.Len(t, msg.Answers, 1)
	assert.Equal(t, "Please wait a moment...", msg.Answers[0].Text)
	assert.True(t, msg.Answers[0].Alert)
}

func TestOwnReactionDoesNotNotify(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")

	eng.HandleUpdate(context.Background(), callbackOn(10, fmt.Sprintf("react:relatable:%d", id), fakeChannelChatID, 77))

	assert.Len(t, st.reactions, 1)
	assert.Len(t, msg.Markups, 1)
	assert.Empty(t, msg.sentTo(telegram.Chat(10)))
}

func TestUnreachableAuthorIsSwallowed(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")
	msg.failSendTo[telegram.Chat(10)] = &telegram.APIError{Code: 403, Description: "Forbidden: bot was blocked by the user"}

	eng.HandleUpdate(context.Background(), callbackOn(20, fmt.Sprintf("react:relatable:%d", id), fakeChannelChatID, 77))

	// The reaction stays committed; the failed notification is logged only.
	assert.Len(t, st.reactions, 1)
	assert.Equal(t, "Thanks for reacting!", msg.Answers[0].Text)
}

func TestNotModifiedEditIsSuccess(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")
	msg.markupErr = &telegram.APIError{Code: 400, Description: "Bad Request: message is not modified"}

	eng.HandleUpdate(context.Background(), callbackOn(20, fmt.Sprintf("react:relatable:%d", id), fakeChannelChatID, 77))

	// The no-op control update does not stop the author notification.
	assert.Len(t, st.reactions, 1)
	assert.Len(t, msg.sentTo(telegram.Chat(10)), 1)
}

func TestCommentDeepLinkNotFound(t *testing.T) {
	eng, _, msg := newTestEngine(t, nil)

	eng.HandleUpdate(context.Background(), privateMessage(20, "/start comment_42"))

	assert.Equal(t, StageIdle, eng.sessions.Get(20).Stage)
	assert.Contains(t, msg.lastSent().Text, "doesn't exist anymore")
}

func TestCommentDeepLinkMalformed(t *testing.T) {
	eng, _, msg := newTestEngine(t, nil)

	eng.HandleUpdate(context.Background(), privateMessage(20, "/start comment_abc"))

	assert.Equal(t, StageIdle, eng.sessions.Get(20).Stage)
	assert.Contains(t, msg.lastSent().Text, "Invalid comment link.")
}

func TestCommentFlow(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "my deepest secret")

	ctx := context.Background()
	eng.HandleUpdate(ctx, privateMessage(20, fmt.Sprintf("/start comment_%d", id)))

	sess := eng.sessions.Get(20)
	assert.Equal(t, StageAwaitingCommentText, sess.Stage)
	assert.Equal(t, id, sess.ConfessionID)
	assert.Contains(t, msg.lastSent().Text, "my deepest secret")

	eng.HandleUpdate(ctx, privateMessage(20, "nice"))

	// Comment persisted against the bound confession.
	require.Len(t, st.comments[id], 1)
	assert.Equal(t, "nice", st.comments[id][0])

	// Mirrored as a threaded reply under the public post.
	broadcast := msg.sentTo(telegram.Chat(fakeChannelChatID))
	require.Len(t, broadcast, 1)
	assert.Contains(t, broadcast[0].Text, "nice")
	assert.Equal(t, int64(77), broadcast[0].Opts.ReplyToMessageID)

	// Exactly one notification to the author, commenter is someone else.
	notifications := msg.sentTo(telegram.Chat(10))
	require.Len(t, notifications, 1)
	assert.Contains(t, notifications[0].Text, "commented")

	assert.Equal(t, StageIdle, eng.sessions.Get(20).Stage)
}

func TestEmptyCommentRetries(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")

	ctx := context.Background()
	eng.HandleUpdate(ctx, privateMessage(20, fmt.Sprintf("/start comment_%d", id)))
	eng.HandleUpdate(ctx, privateMessage(20, "   "))

	assert.Equal(t, StageAwaitingCommentText, eng.sessions.Get(20).Stage)
	assert.Empty(t, st.comments[id])
	assert.Contains(t, msg.lastSent().Text, "cannot be empty")
}

func TestCommentSessionClearedWhenConfessionVanishes(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")

	ctx := context.Background()
	eng.HandleUpdate(ctx, privateMessage(20, fmt.Sprintf("/start comment_%d", id)))
	delete(st.confessions, id)

	eng.HandleUpdate(ctx, privateMessage(20, "still here?"))

	// Cleanup is unconditional on this transition.
	assert.Equal(t, StageIdle, eng.sessions.Get(20).Stage)
	assert.Contains(t, msg.lastSent().Text, "does not seem to exist")
}

func TestTopLevelCommandCancelsFlow(t *testing.T) {
	eng, _, msg := newTestEngine(t, nil)
	runConfessionFlow(t, eng, 10)

	eng.HandleUpdate(context.Background(), privateMessage(10, "/help"))

	assert.Equal(t, StageIdle, eng.sessions.Get(10).Stage)
	assert.Contains(t, msg.lastSent().Text, "/confess")
}

func TestCancelIsIdempotent(t *testing.T) {
	eng, _, msg := newTestEngine(t, nil)

	// Cancelling while already idle still acknowledges and rewrites.
	eng.HandleUpdate(context.Background(), callbackOn(10, "cancel_confession", 10, 5))

	assert.Equal(t, StageIdle, eng.sessions.Get(10).Stage)
	require.Len(t, msg.Answers, 1)
	assert.Equal(t, "Confession cancelled.", msg.Answers[0].Text)
	require.Len(t, msg.Edits, 1)
	assert.Contains(t, msg.Edits[0].Text, "cancelled")
}

func TestCancelMidFlowClearsSession(t *testing.T) {
	eng, _, _ := newTestEngine(t, nil)
	runConfessionFlow(t, eng, 10)

	eng.HandleUpdate(context.Background(), callbackOn(10, "cancel_confession", 10, 5))

	assert.Equal(t, StageIdle, eng.sessions.Get(10).Stage)
}

func TestStaleCategoryButtonIgnored(t *testing.T) {
	eng, _, msg := newTestEngine(t, nil)

	eng.HandleUpdate(context.Background(), callbackOn(10, "category:💼 Work", 10, 5))

	assert.Equal(t, StageIdle, eng.sessions.Get(10).Stage)
	assert.Len(t, msg.Answers, 1)
	assert.Empty(t, msg.Edits)
}

func TestViewCommentsEmpty(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")

	eng.HandleUpdate(context.Background(), callbackOn(20, fmt.Sprintf("viewcomments:%d", id), fakeChannelChatID, 77))

	require.Len(t, msg.Answers, 1)
	assert.Equal(t, "No comments yet.", msg.Answers[0].Text)
	assert.True(t, msg.Answers[0].Alert)
}

func TestViewCommentsDeliveredByDM(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")
	require.NoError(t, st.AddComment(context.Background(), id, 30, "same here"))
	require.NoError(t, st.AddComment(context.Background(), id, 40, "stay strong"))

	eng.HandleUpdate(context.Background(), callbackOn(20, fmt.Sprintf("viewcomments:%d", id), fakeChannelChatID, 77))

	dms := msg.sentTo(telegram.Chat(20))
	require.Len(t, dms, 1)
	assert.Contains(t, dms[0].Text, "same here")
	assert.Contains(t, dms[0].Text, "stay strong")
}

func TestGiveCommentSendsDeepLink(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	id := seedConfession(t, st, 10, "secret")

	eng.HandleUpdate(context.Background(), callbackOn(20, fmt.Sprintf("givecomment:%d", id), fakeChannelChatID, 77))

	dms := msg.sentTo(telegram.Chat(20))
	require.Len(t, dms, 1)
	require.NotNil(t, dms[0].Opts.ReplyMarkup)
	link := dms[0].Opts.ReplyMarkup.InlineKeyboard[0][0].URL
	assert.Equal(t, fmt.Sprintf("https://t.me/confessbot?start=comment_%d", id), link)
}

func TestLeaderboardRendering(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	st.ranked = []store.Ranked{
		{ID: 9, Text: "most relatable", Reactions: 12},
		{ID: 4, Text: strings.Repeat("x", 80), Reactions: 3},
	}

	eng.HandleUpdate(context.Background(), callbackOn(20, "leaderboard:day", 20, 5))

	assert.Equal(t, 10, st.gotLimit)
	assert.Equal(t, 24*time.Hour, st.gotWindow)

	require.Len(t, msg.Edits, 1)
	body := msg.Edits[0].Text
	assert.Contains(t, body, "Top 10 Confessions (Daily)")
	assert.Contains(t, body, "1. #9:")
	assert.Contains(t, body, "2. #4:")
	// Long texts are truncated to a 70-rune snippet.
	assert.Contains(t, body, strings.Repeat("x", 70)+"...")
	assert.NotContains(t, body, strings.Repeat("x", 71))
}

func TestLeaderboardWeekWindow(t *testing.T) {
	eng, st, _ := newTestEngine(t, nil)

	eng.HandleUpdate(context.Background(), callbackOn(20, "leaderboard:week", 20, 5))

	assert.Equal(t, 7*24*time.Hour, st.gotWindow)
}

func TestLeaderboardEmpty(t *testing.T) {
	eng, _, msg := newTestEngine(t, nil)

	eng.HandleUpdate(context.Background(), callbackOn(20, "leaderboard:day", 20, 5))

	require.Len(t, msg.Edits, 1)
	assert.Contains(t, msg.Edits[0].Text, "No confessions with reactions found for the Daily leaderboard.")
}

func TestMyConfessionsRendering(t *testing.T) {
	eng, st, msg := newTestEngine(t, nil)
	seedConfession(t, st, 10, "mine one")
	seedConfession(t, st, 99, "not mine")

	eng.HandleUpdate(context.Background(), callbackOn(10, "my_confessions:all", 10, 5))

	require.Len(t, msg.Edits, 1)
	body := msg.Edits[0].Text
	assert.Contains(t, body, "All Your Confessions")
	assert.Contains(t, body, "mine one")
	assert.NotContains(t, body, "not mine")
	assert.Contains(t, body, "[View](https://t.me/confessions/77)")
	require.NotNil(t, msg.Edits[0].Opts)
	assert.Equal(t, "Markdown", msg.Edits[0].Opts.ParseMode)
}

func TestMyConfessionsEmpty(t *testing.T) {
	eng, _, msg := newTestEngine(t, nil)

	eng.HandleUpdate(context.Background(), callbackOn(10, "my_confessions:day", 10, 5))

	require.Len(t, msg.Edits, 1)
	assert.Contains(t, msg.Edits[0].Text, "not made any confessions")
}

func TestUnknownCallbackAcknowledged(t *testing.T) {
	eng, _, msg := newTestEngine(t, nil)

	eng.HandleUpdate(context.Background(), callbackOn(10, "definitely:not:a:tag", 10, 5))

	assert.Len(t, msg.Answers, 1)
	assert.Empty(t, msg.Edits)
	assert.Empty(t, msg.Sent)
}

func TestGroupMessagesIgnored(t *testing.T) {
	eng, _, msg := newTestEngine(t, nil)
	u := privateMessage(10, "/confess")
	u.Message.Chat.Type = "supergroup"

	eng.HandleUpdate(context.Background(), u)

	assert.Empty(t, msg.Sent)
	assert.Equal(t, StageIdle, eng.sessions.Get(10).Stage)
}
