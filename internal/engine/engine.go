// Package engine is the confession lifecycle core: the per-user
// conversational state machine, the cooldown and duplicate-action policies,
// and the aggregation-and-notification protocol that keeps a public post's
// controls and the author's inbox in sync.
//
// The engine talks to Telegram and Postgres only through the Messenger and
// Store capability contracts, so tests substitute both.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/confessbot/internal/identity"
	"github.com/confessbot/internal/sanitize"
	"github.com/confessbot/internal/store"
	"github.com/confessbot/internal/telegram"
)

// minConfessionLen is the minimum sanitized confession length in runes.
const minConfessionLen = 5

// Messenger is the narrow messaging capability the engine depends on.
// Every call may fail with a delivery error; the engine degrades gracefully
// and never lets one propagate as a crash.
type Messenger interface {
	SendMessage(ctx context.Context, chat telegram.ChatID, text string, opts *telegram.SendOptions) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chat telegram.ChatID, messageID int64, text string, opts *telegram.SendOptions) error
	EditReplyMarkup(ctx context.Context, chat telegram.ChatID, messageID int64, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error
	Me(ctx context.Context) (*telegram.User, error)
}

// Store is the persistence capability the engine depends on. Implemented by
// store.Postgres; faked in tests.
type Store interface {
	CreateConfession(ctx context.Context, c *store.Confession) (int64, error)
	LastConfessionAt(ctx context.Context, authorID int64) (time.Time, bool, error)
	ConfessionText(ctx context.Context, id int64) (string, error)
	PostRef(ctx context.Context, id int64) (*store.PostRef, error)
	AddReaction(ctx context.Context, confessionID, userID int64, typ store.ReactionType) error
	AddComment(ctx context.Context, confessionID, commenterID int64, text string) error
	ReactionCounts(ctx context.Context, confessionID int64) (map[store.ReactionType]int, error)
	CommentCount(ctx context.Context, confessionID int64) (int, error)
	Comments(ctx context.Context, confessionID int64) ([]string, error)
	Leaderboard(ctx context.Context, window time.Duration, limit int) ([]store.Ranked, error)
	ByAuthor(ctx context.Context, authorID int64, window time.Duration) ([]store.AuthorPost, error)
}

// Params wires an Engine. Store, Messenger, Codec and Channel are required;
// Cooldown defaults to DefaultCooldown and Now to time.Now.
type Params struct {
	Store       Store
	Messenger   Messenger
	Codec       *identity.Codec
	Channel     string // public channel, e.g. @myconfessions
	Cooldown    time.Duration
	NotifyDelta int // loaded for compatibility, not used for suppression
	Now         func() time.Time
}

// Engine drives the confession lifecycle.
type Engine struct {
	store       Store
	msg         Messenger
	codec       *identity.Codec
	sessions    *Sessions
	channel     string
	cooldown    time.Duration
	notifyDelta int
	now         func() time.Time
}

// New creates an Engine.
func New(p Params) *Engine {
	if p.Cooldown == 0 {
		p.Cooldown = DefaultCooldown
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Engine{
		store:       p.Store,
		msg:         p.Messenger,
		codec:       p.Codec,
		sessions:    NewSessions(),
		channel:     p.Channel,
		cooldown:    p.Cooldown,
		notifyDelta: p.NotifyDelta,
		now:         p.Now,
	}
}

const (
	welcomeText = "Welcome! I am the Anonymous Confession Bot. 🤫\n\n" +
		"You can share your thoughts, secrets, and stories anonymously.\n\n" +
		"➡️ Use /confess to post a new confession.\n" +
		"➡️ Use /help to see everything I can do."

	helpText = "👋 Hello! I'm the Anonymous Confession Bot.\n\n" +
		"I'm here to provide a safe space for you to share your thoughts, secrets, and stories anonymously.\n\n" +
		"Here are the commands you can use:\n\n" +
		"🔹 /confess - Start the process of posting a new anonymous confession.\n\n" +
		"🔹 /leaderboard - See the most popular confessions! You'll get options to view the top posts from today or this week.\n\n" +
		"🔹 /my_confessions - View a list of all the confessions you have personally made.\n\n" +
		"🔹 /help - Show this message again.\n\n" +
		"Your identity is always kept secret. Feel free to express yourself."
)

// HandleUpdate classifies and routes one inbound update. The caller runs it
// in its own goroutine; everything shared is behind the session store lock.
func (e *Engine) HandleUpdate(ctx context.Context, u *telegram.Update) {
	logger := log.With().Str("update", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)

	switch {
	case u.CallbackQuery != nil:
		e.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil && !u.Message.From.IsBot:
		e.handleMessage(ctx, u.Message)
	}
}

func (e *Engine) handleMessage(ctx context.Context, m *telegram.Message) {
	if m.Chat.Type != "private" {
		return
	}

	text := strings.TrimSpace(m.Text)
	if cmd, payload, ok := splitCommand(text); ok {
		// /start and /help always take over, cancelling any flow. The
		// other commands only apply when idle; mid-flow they are plain
		// text, exactly like any other message.
		if cmd == "start" || cmd == "help" || e.sessions.Get(m.From.ID).Stage == StageIdle {
			e.handleCommand(ctx, m, cmd, payload)
			return
		}
	}
	e.handleText(ctx, m)
}

// splitCommand parses "/confess", "/start@botname payload" style messages.
func splitCommand(text string) (cmd, payload string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, tail, _ := strings.Cut(text[1:], " ")
	if head == "" {
		return "", "", false
	}
	// Commands in private chats may still carry the @botname suffix.
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(tail), true
}

func (e *Engine) handleCommand(ctx context.Context, m *telegram.Message, cmd, payload string) {
	userID := m.From.ID

	switch cmd {
	case "start":
		e.sessions.Clear(userID)
		if strings.HasPrefix(payload, "comment_") {
			e.startCommentFlow(ctx, m, strings.TrimPrefix(payload, "comment_"))
			return
		}
		e.reply(ctx, m, welcomeText, nil)

	case "help":
		e.sessions.Clear(userID)
		e.reply(ctx, m, helpText, nil)

	case "confess":
		remaining, err := e.cooldownRemaining(ctx, userID)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int64("user", userID).Msg("cooldown check failed")
			e.reply(ctx, m, "Something went wrong. Please try again.", nil)
			return
		}
		if remaining > 0 {
			e.reply(ctx, m, fmt.Sprintf("Please wait %s before confessing again.", formatWait(remaining)), nil)
			return
		}
		e.reply(ctx, m, "Pick a category for your confession:", &telegram.SendOptions{
			ReplyMarkup: categoryKeyboard(),
		})
		e.sessions.Set(userID, Session{Stage: StageAwaitingCategory})

	case "leaderboard":
		e.reply(ctx, m, "Select a leaderboard to view:", &telegram.SendOptions{
			ReplyMarkup: leaderboardKeyboard(),
		})

	case "my_confessions":
		e.reply(ctx, m, "Select a time period to view your confessions:", &telegram.SendOptions{
			ReplyMarkup: myConfessionsKeyboard(),
		})
	}
}

// startCommentFlow handles the comment_<id> deep link: bind the confession
// into the session and echo its text back as context.
func (e *Engine) startCommentFlow(ctx context.Context, m *telegram.Message, idArg string) {
	userID := m.From.ID

	confessionID, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil || confessionID <= 0 {
		e.reply(ctx, m, "Invalid comment link.", nil)
		return
	}

	text, err := e.store.ConfessionText(ctx, confessionID)
	if errors.Is(err, store.ErrNotFound) {
		e.reply(ctx, m, "Sorry, the confession you're trying to comment on doesn't exist anymore.", nil)
		return
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("confession", confessionID).Msg("deep link lookup failed")
		e.reply(ctx, m, "Something went wrong. Please try again.", nil)
		return
	}

	e.sessions.Set(userID, Session{Stage: StageAwaitingCommentText, ConfessionID: confessionID})
	e.reply(ctx, m, fmt.Sprintf(
		"You are leaving an anonymous comment for confession #%d:\n\n\"%s\"\n\nPlease type your comment below:",
		confessionID, text,
	), nil)
}

func (e *Engine) handleText(ctx context.Context, m *telegram.Message) {
	switch sess := e.sessions.Get(m.From.ID); sess.Stage {
	case StageAwaitingConfessionText:
		e.submitConfession(ctx, m, sess)
	case StageAwaitingCommentText:
		e.submitComment(ctx, m, sess)
	}
	// Idle or awaiting a category button: unsolicited text, ignore.
}

// submitConfession publishes the confession with zeroed controls, persists
// it, then retags the controls with the real id and links the author.
func (e *Engine) submitConfession(ctx context.Context, m *telegram.Message, sess Session) {
	logger := zerolog.Ctx(ctx)
	authorID := m.From.ID

	text := sanitize.Clean(m.Text)
	if utf8.RuneCountInString(text) < minConfessionLen {
		// Stay in AwaitingConfessionText; the user retries.
		e.reply(ctx, m, "Your confession seems too short. Please try again with at least 5 characters.", nil)
		return
	}

	posted, err := e.msg.SendMessage(ctx, telegram.ChatID(e.channel),
		fmt.Sprintf("%s Anonymous Confession\n\n\"%s\"", sess.Category, text),
		&telegram.SendOptions{ReplyMarkup: confessionKeyboard(0, Aggregate{})})
	if err != nil {
		logger.Error().Err(err).Msg("publishing confession to channel failed")
		e.reply(ctx, m, "I couldn't post your confession right now. Please try again.", nil)
		return
	}

	token, err := e.codec.Encrypt(authorID)
	if err != nil {
		logger.Error().Err(err).Msg("encrypting author id failed")
		e.reply(ctx, m, "Something went wrong. Please try again.", nil)
		e.sessions.Clear(authorID)
		return
	}

	confessionID, err := e.store.CreateConfession(ctx, &store.Confession{
		AuthorID:         authorID,
		AuthorToken:      token,
		ChannelChatID:    posted.Chat.ID,
		ChannelMessageID: posted.MessageID,
		Category:         sess.Category,
		Text:             text,
	})
	if err != nil {
		logger.Error().Err(err).Msg("persisting confession failed")
		e.reply(ctx, m, "Something went wrong while saving your confession.", nil)
		e.sessions.Clear(authorID)
		return
	}

	// Retag the zeroed controls with the assigned id.
	err = e.msg.EditReplyMarkup(ctx, telegram.Chat(posted.Chat.ID), posted.MessageID,
		confessionKeyboard(confessionID, Aggregate{}))
	if err != nil && !telegram.IsNotModified(err) {
		logger.Warn().Err(err).Int64("confession", confessionID).Msg("could not retag post controls")
	}

	e.reply(ctx, m, fmt.Sprintf(
		"✅ Your confession has been posted anonymously!\n\n🔗 View it here: %s\n\nSee /leaderboard to see top confessions!",
		e.postLink(posted.MessageID),
	), nil)
	e.sessions.Clear(authorID)
}

// submitComment persists the comment and mirrors it under the public post.
// The session is cleared on this transition whether or not persistence
// succeeds; only the empty-text retry keeps it alive.
func (e *Engine) submitComment(ctx context.Context, m *telegram.Message, sess Session) {
	logger := zerolog.Ctx(ctx)
	commenterID := m.From.ID

	text := sanitize.Clean(m.Text)
	if text == "" {
		e.reply(ctx, m, "A comment cannot be empty. Please try again.", nil)
		return
	}

	defer e.sessions.Clear(commenterID)

	if sess.ConfessionID == 0 {
		e.reply(ctx, m, "Something went wrong. Please try commenting again.", nil)
		return
	}

	ref, err := e.store.PostRef(ctx, sess.ConfessionID)
	if errors.Is(err, store.ErrNotFound) {
		e.reply(ctx, m, "This confession does not seem to exist anymore.", nil)
		return
	}
	if err != nil {
		logger.Error().Err(err).Int64("confession", sess.ConfessionID).Msg("comment target lookup failed")
		e.reply(ctx, m, "❌ An error occurred while saving your comment.", nil)
		return
	}

	if err := e.store.AddComment(ctx, sess.ConfessionID, commenterID, text); err != nil {
		logger.Error().Err(err).Int64("confession", sess.ConfessionID).Msg("persisting comment failed")
		e.reply(ctx, m, "❌ An error occurred while saving your comment.", nil)
		return
	}

	// Mirror as a threaded reply under the original post. Best effort.
	_, err = e.msg.SendMessage(ctx, telegram.Chat(ref.ChatID),
		fmt.Sprintf("💬 Anonymous Comment:\n\n\"%s\"", text),
		&telegram.SendOptions{ReplyToMessageID: ref.MessageID})
	if err != nil {
		logger.Warn().Err(err).Int64("confession", sess.ConfessionID).Msg("broadcasting comment failed")
	}

	e.reply(ctx, m, "✅ Your anonymous comment has been posted!", nil)

	e.OnMutation(ctx, sess.ConfessionID, commenterID, MutationComment)
}

// reply sends a message back to the user a message came from, logging and
// swallowing delivery failures.
func (e *Engine) reply(ctx context.Context, m *telegram.Message, text string, opts *telegram.SendOptions) {
	if _, err := e.msg.SendMessage(ctx, telegram.Chat(m.Chat.ID), text, opts); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("chat", m.Chat.ID).Msg("reply delivery failed")
	}
}

// postLink builds the public share link for a channel message.
func (e *Engine) postLink(messageID int64) string {
	return fmt.Sprintf("https://t.me/%s/%d", strings.TrimPrefix(e.channel, "@"), messageID)
}
