package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/confessbot/internal/store"
	"github.com/confessbot/internal/telegram"
)

// fakeStore is an in-memory Store honoring the same invariants Postgres
// enforces: assigned ids, reaction uniqueness, counts recomputed from rows.
type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	confessions map[int64]*store.Confession
	reactions   map[string]store.ReactionType
	comments    map[int64][]string

	ranked    []store.Ranked // canned leaderboard result
	gotWindow time.Duration
	gotLimit  int

	failCreate error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		confessions: make(map[int64]*store.Confession),
		reactions:   make(map[string]store.ReactionType),
		comments:    make(map[int64][]string),
	}
}

func (f *fakeStore) CreateConfession(ctx context.Context, c *store.Confession) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return 0, f.failCreate
	}
	f.nextID++
	saved := *c
	saved.ID = f.nextID
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now()
	}
	f.confessions[saved.ID] = &saved
	return saved.ID, nil
}

func (f *fakeStore) LastConfessionAt(ctx context.Context, authorID int64) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last time.Time
	var found bool
	for _, c := range f.confessions {
		if c.AuthorID == authorID && c.CreatedAt.After(last) {
			last, found = c.CreatedAt, true
		}
	}
	return last, found, nil
}

func (f *fakeStore) ConfessionText(ctx context.Context, id int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.confessions[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return c.Text, nil
}

func (f *fakeStore) PostRef(ctx context.Context, id int64) (*store.PostRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.confessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.PostRef{ChatID: c.ChannelChatID, MessageID: c.ChannelMessageID, AuthorID: c.AuthorID}, nil
}

func (f *fakeStore) AddReaction(ctx context.Context, confessionID, userID int64, typ store.ReactionType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.confessions[confessionID]; !ok {
		return errors.New("foreign key violation")
	}
	key := fmt.Sprintf("%d:%d:%s", confessionID, userID, typ)
	if _, dup := f.reactions[key]; dup {
		return store.ErrDuplicateReaction
	}
	f.reactions[key] = typ
	return nil
}

func (f *fakeStore) AddComment(ctx context.Context, confessionID, commenterID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.confessions[confessionID]; !ok {
		return errors.New("foreign key violation")
	}
	f.comments[confessionID] = append(f.comments[confessionID], text)
	return nil
}

func (f *fakeStore) ReactionCounts(ctx context.Context, confessionID int64) (map[store.ReactionType]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[store.ReactionType]int)
	prefix := fmt.Sprintf("%d:", confessionID)
	for key, typ := range f.reactions {
		if strings.HasPrefix(key, prefix) {
			counts[typ]++
		}
	}
	return counts, nil
}

func (f *fakeStore) CommentCount(ctx context.Context, confessionID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.comments[confessionID]), nil
}

func (f *fakeStore) Comments(ctx context.Context, confessionID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments[confessionID]...), nil
}

func (f *fakeStore) Leaderboard(ctx context.Context, window time.Duration, limit int) ([]store.Ranked, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotWindow, f.gotLimit = window, limit
	return f.ranked, nil
}

func (f *fakeStore) ByAuthor(ctx context.Context, authorID int64, window time.Duration) ([]store.AuthorPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var posts []store.AuthorPost
	for _, c := range f.confessions {
		if c.AuthorID != authorID {
			continue
		}
		posts = append(posts, store.AuthorPost{ID: c.ID, Text: c.Text, MessageID: c.ChannelMessageID})
	}
	return posts, nil
}

// sentMessage records one outbound SendMessage call.
type sentMessage struct {
	Chat telegram.ChatID
	Text string
	Opts *telegram.SendOptions
}

type markupEdit struct {
	Chat      telegram.ChatID
	MessageID int64
	Markup    *telegram.InlineKeyboardMarkup
}

type textEdit struct {
	Chat      telegram.ChatID
	MessageID int64
	Text      string
	Opts      *telegram.SendOptions
}

type callbackAnswer struct {
	ID    string
	Text  string
	Alert bool
}

// fakeMessenger records every capability call and can be told to fail
// deliveries to specific chats.
type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int64
	Sent    []sentMessage
	Markups []markupEdit
	Edits   []textEdit
	Answers []callbackAnswer

	failSendTo map[telegram.ChatID]error
	markupErr  error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{failSendTo: make(map[telegram.ChatID]error)}
}

const fakeChannelChatID = -100500

func (f *fakeMessenger) SendMessage(ctx context.Context, chat telegram.ChatID, text string, opts *telegram.SendOptions) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSendTo[chat]; err != nil {
		return nil, err
	}
	f.nextID++
	f.Sent = append(f.Sent, sentMessage{Chat: chat, Text: text, Opts: opts})

	chatID := int64(fakeChannelChatID)
	if !strings.HasPrefix(string(chat), "@") {
		chatID, _ = strconv.ParseInt(string(chat), 10, 64)
	}
	return &telegram.Message{MessageID: f.nextID, Chat: telegram.ChatInfo{ID: chatID}}, nil
}

func (f *fakeMessenger) EditMessageText(ctx context.Context, chat telegram.ChatID, messageID int64, text string, opts *telegram.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edits = append(f.Edits, textEdit{Chat: chat, MessageID: messageID, Text: text, Opts: opts})
	return nil
}

func (f *fakeMessenger) EditReplyMarkup(ctx context.Context, chat telegram.ChatID, messageID int64, markup *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Markups = append(f.Markups, markupEdit{Chat: chat, MessageID: messageID, Markup: markup})
	return f.markupErr
}

func (f *fakeMessenger) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Answers = append(f.Answers, callbackAnswer{ID: callbackID, Text: text, Alert: showAlert})
	return nil
}

func (f *fakeMessenger) Me(ctx context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 1, IsBot: true, Username: "confessbot"}, nil
}

// sentTo returns the messages delivered to one chat.
func (f *fakeMessenger) sentTo(chat telegram.ChatID) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, s := range f.Sent {
		if s.Chat == chat {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeMessenger) lastSent() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Sent[len(f.Sent)-1]
}
