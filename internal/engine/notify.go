package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/confessbot/internal/store"
	"github.com/confessbot/internal/telegram"
)

// Mutation is the kind of accepted change driving a notification.
type Mutation string

const (
	MutationReaction Mutation = "reaction"
	MutationComment  Mutation = "comment"
)

func (e *Engine) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	logger := zerolog.Ctx(ctx)

	action, err := ParseAction(cb.Data)
	if err != nil {
		logger.Warn().Err(err).Str("data", cb.Data).Msg("dropping callback with unknown action")
		e.answer(ctx, cb.ID, "", false)
		return
	}

	switch a := action.(type) {
	case ChooseCategory:
		e.onCategory(ctx, cb, a)
	case Cancel:
		e.onCancel(ctx, cb)
	case React:
		e.OnReact(ctx, cb, a)
	case ViewComments:
		e.onViewComments(ctx, cb, a)
	case GiveComment:
		e.onGiveComment(ctx, cb, a)
	case ShowLeaderboard:
		e.onLeaderboard(ctx, cb, a)
	case ShowMyConfessions:
		e.onMyConfessions(ctx, cb, a)
	}
}

func (e *Engine) onCategory(ctx context.Context, cb *telegram.CallbackQuery, a ChooseCategory) {
	userID := cb.From.ID

	// A stale category button (flow already cancelled or finished) is
	// acknowledged and otherwise ignored.
	if e.sessions.Get(userID).Stage != StageAwaitingCategory {
		e.answer(ctx, cb.ID, "", false)
		return
	}

	e.answer(ctx, cb.ID, "", false)
	e.sessions.Set(userID, Session{Stage: StageAwaitingConfessionText, Category: a.Name})

	if cb.Message != nil {
		err := e.msg.EditMessageText(ctx, telegram.Chat(cb.Message.Chat.ID), cb.Message.MessageID,
			"Type your confession below. It will be posted anonymously.", nil)
		if err != nil && !telegram.IsNotModified(err) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("could not edit category prompt")
		}
	}

	e.send(ctx, telegram.Chat(userID), "Remember, you can always stop.", &telegram.SendOptions{
		ReplyMarkup: cancelKeyboard(),
	})
}

// onCancel always succeeds: any flow ends and the prompt is rewritten.
// Cancelling an idle session is a no-op apart from the acknowledgment.
func (e *Engine) onCancel(ctx context.Context, cb *telegram.CallbackQuery) {
	e.answer(ctx, cb.ID, "Confession cancelled.", false)
	e.sessions.Clear(cb.From.ID)

	const cancelled = "❌ Your confession has been cancelled."
	if cb.Message != nil {
		err := e.msg.EditMessageText(ctx, telegram.Chat(cb.Message.Chat.ID), cb.Message.MessageID, cancelled, nil)
		if err == nil || telegram.IsNotModified(err) {
			return
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("could not edit message on cancel")
	}
	e.send(ctx, telegram.Chat(cb.From.ID), cancelled, nil)
}

// OnReact inserts the reaction optimistically; the store's unique constraint
// is the duplicate check. Id 0 is a post whose controls have not been
// retagged yet.
func (e *Engine) OnReact(ctx context.Context, cb *telegram.CallbackQuery, a React) {
	if a.ConfessionID == 0 {
		e.answer(ctx, cb.ID, "Please wait a moment...", true)
		return
	}

	err := e.store.AddReaction(ctx, a.ConfessionID, cb.From.ID, a.Type)
	switch {
	case errors.Is(err, store.ErrDuplicateReaction):
		e.answer(ctx, cb.ID, "You've already reacted with this type.", false)
		return
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Int64("confession", a.ConfessionID).Msg("inserting reaction failed")
		e.answer(ctx, cb.ID, "Something went wrong. Please try again.", false)
		return
	}

	e.answer(ctx, cb.ID, "Thanks for reacting!", false)
	e.OnMutation(ctx, a.ConfessionID, cb.From.ID, MutationReaction)
}

// OnMutation refreshes the public post's controls from a fresh aggregate and
// privately notifies the author when someone else reacted or commented.
// Failures here never roll back the committed mutation.
func (e *Engine) OnMutation(ctx context.Context, confessionID, actorID int64, kind Mutation) {
	logger := zerolog.Ctx(ctx)

	agg, err := e.aggregate(ctx, confessionID)
	if err != nil {
		logger.Error().Err(err).Int64("confession", confessionID).Msg("recomputing aggregate failed")
		return
	}

	ref, err := e.store.PostRef(ctx, confessionID)
	if err != nil {
		// Confession no longer resolvable; nothing to refresh or notify.
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error().Err(err).Int64("confession", confessionID).Msg("post lookup failed")
		}
		return
	}

	err = e.msg.EditReplyMarkup(ctx, telegram.Chat(ref.ChatID), ref.MessageID,
		confessionKeyboard(confessionID, agg))
	if err != nil && !telegram.IsNotModified(err) {
		logger.Warn().Err(err).Int64("confession", confessionID).Msg("could not refresh post controls")
	}

	if ref.AuthorID == actorID {
		return
	}

	var text string
	switch kind {
	case MutationReaction:
		text = fmt.Sprintf("🎉 Someone reacted to your confession #%d!\n\nTap to view: %s",
			confessionID, e.postLink(ref.MessageID))
	default:
		text = fmt.Sprintf("💬 Someone commented on your confession #%d!\n\nTap to view: %s",
			confessionID, e.postLink(ref.MessageID))
	}

	if _, err := e.msg.SendMessage(ctx, telegram.Chat(ref.AuthorID), text, nil); err != nil {
		// The author may have blocked the bot or never started it. The
		// reaction/comment is already committed; log and move on.
		if telegram.IsUnreachable(err) {
			logger.Warn().Int64("confession", confessionID).Msg("author unreachable for notification")
		} else {
			logger.Error().Err(err).Int64("confession", confessionID).Msg("author notification failed")
		}
	}
}

func (e *Engine) onViewComments(ctx context.Context, cb *telegram.CallbackQuery, a ViewComments) {
	if a.ConfessionID == 0 {
		e.answer(ctx, cb.ID, "Please wait a moment...", true)
		return
	}

	comments, err := e.store.Comments(ctx, a.ConfessionID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("confession", a.ConfessionID).Msg("loading comments failed")
		e.answer(ctx, cb.ID, "Something went wrong. Please try again.", true)
		return
	}
	if len(comments) == 0 {
		e.answer(ctx, cb.ID, "No comments yet.", true)
		return
	}

	quoted := make([]string, len(comments))
	for i, c := range comments {
		quoted[i] = fmt.Sprintf("💬 \"%s\"", c)
	}
	body := fmt.Sprintf("📜 Comments for confession #%d:\n\n%s", a.ConfessionID, strings.Join(quoted, "\n\n"))

	if _, err := e.msg.SendMessage(ctx, telegram.Chat(cb.From.ID), body, nil); err != nil {
		if telegram.IsUnreachable(err) {
			e.answer(ctx, cb.ID, "I couldn't send you the comments because I can't start a chat with you. Please start a chat with me first!", true)
		} else {
			e.answer(ctx, cb.ID, "I couldn't send you the comments. Have you started a chat with me?", true)
		}
		return
	}
	e.answer(ctx, cb.ID, "", false)
}

func (e *Engine) onGiveComment(ctx context.Context, cb *telegram.CallbackQuery, a GiveComment) {
	logger := zerolog.Ctx(ctx)

	// Answer immediately so the button press never times out.
	e.answer(ctx, cb.ID, "", false)

	if a.ConfessionID == 0 {
		logger.Warn().Msg("givecomment pressed on a post still mid-creation")
		return
	}

	me, err := e.msg.Me(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("resolving bot identity failed")
		return
	}
	link := fmt.Sprintf("https://t.me/%s?start=comment_%d", me.Username, a.ConfessionID)

	_, err = e.msg.SendMessage(ctx, telegram.Chat(cb.From.ID),
		fmt.Sprintf("To leave an anonymous comment on confession #%d, please click the button below.", a.ConfessionID),
		&telegram.SendOptions{ReplyMarkup: &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{
				{{Text: "➡️ Leave a Comment", URL: link}},
			},
		}})
	if err != nil {
		logger.Warn().Err(err).Int64("user", cb.From.ID).Msg("could not send comment deep link")
		e.send(ctx, telegram.Chat(cb.From.ID),
			"I couldn't send you the comment link. Have you started a chat with me and are you not blocking me?", nil)
	}
}

func (e *Engine) onLeaderboard(ctx context.Context, cb *telegram.CallbackQuery, a ShowLeaderboard) {
	title := "Daily"
	if a.Period == PeriodWeek {
		title = "Weekly"
	}

	ranked, err := e.store.Leaderboard(ctx, a.Period.Window(), 10)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("leaderboard query failed")
		e.answer(ctx, cb.ID, "Something went wrong. Please try again.", true)
		return
	}

	if len(ranked) == 0 {
		e.editMenu(ctx, cb, fmt.Sprintf("No confessions with reactions found for the %s leaderboard.", title))
		e.answer(ctx, cb.ID, "", false)
		return
	}

	lines := []string{fmt.Sprintf("🏆 Top 10 Confessions (%s)\n", title)}
	for i, r := range ranked {
		lines = append(lines, fmt.Sprintf("%d. #%d: \"%s\" - Reactions: %d", i+1, r.ID, snippet(r.Text, 70), r.Reactions))
	}

	e.editMenu(ctx, cb, strings.Join(lines, "\n"))
	e.answer(ctx, cb.ID, "", false)
}

func (e *Engine) onMyConfessions(ctx context.Context, cb *telegram.CallbackQuery, a ShowMyConfessions) {
	var title string
	switch a.Period {
	case PeriodDay:
		title = "Today's"
	case PeriodWeek:
		title = "This Week's"
	default:
		title = "All Your"
	}

	posts, err := e.store.ByAuthor(ctx, cb.From.ID, a.Period.Window())
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("my confessions query failed")
		e.answer(ctx, cb.ID, "Something went wrong. Please try again.", true)
		return
	}

	if len(posts) == 0 {
		e.editMenu(ctx, cb, "You have not made any confessions in this time period.")
		e.answer(ctx, cb.ID, "", false)
		return
	}

	lines := []string{fmt.Sprintf("📜 %s Confessions:\n", title)}
	for _, p := range posts {
		lines = append(lines, fmt.Sprintf("• \"%s\" - [View](%s) (%d reactions)",
			snippet(p.Text, 50), e.postLink(p.MessageID), p.Reactions))
	}

	if cb.Message != nil {
		err := e.msg.EditMessageText(ctx, telegram.Chat(cb.Message.Chat.ID), cb.Message.MessageID,
			strings.Join(lines, "\n"), &telegram.SendOptions{
				ParseMode:             "Markdown",
				DisableWebPagePreview: true,
			})
		if err != nil && !telegram.IsNotModified(err) {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("could not render my confessions")
		}
	}
	e.answer(ctx, cb.ID, "", false)
}

// editMenu rewrites the menu message a callback came from, degrading to a
// log line when the message is gone or unchanged.
func (e *Engine) editMenu(ctx context.Context, cb *telegram.CallbackQuery, text string) {
	if cb.Message == nil {
		return
	}
	err := e.msg.EditMessageText(ctx, telegram.Chat(cb.Message.Chat.ID), cb.Message.MessageID, text, nil)
	if err != nil && !telegram.IsNotModified(err) {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("could not edit menu message")
	}
}

// answer acknowledges a callback, logging and swallowing delivery failures.
func (e *Engine) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := e.msg.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("answering callback failed")
	}
}

// send is a fire-and-forget message to a chat, logging delivery failures.
func (e *Engine) send(ctx context.Context, chat telegram.ChatID, text string, opts *telegram.SendOptions) {
	if _, err := e.msg.SendMessage(ctx, chat, text, opts); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("chat", string(chat)).Msg("message delivery failed")
	}
}

// snippet truncates text for list views without splitting runes.
func snippet(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
