// Package store persists confessions, reactions and comments in Postgres.
//
// The database is the sole arbiter of the reaction-uniqueness invariant:
// callers insert optimistically and a unique-constraint violation comes back
// as ErrDuplicateReaction. Counts are never cached here; every aggregate
// query recomputes from committed rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound means the referenced confession no longer exists.
	ErrNotFound = errors.New("store: confession not found")
	// ErrDuplicateReaction means this user already reacted with this type.
	ErrDuplicateReaction = errors.New("store: duplicate reaction")
)

const uniqueViolation = "23505"

// Postgres is the pgx-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	log.Debug().Msg("database pool created")
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
	log.Debug().Msg("database pool closed")
}

// CreateConfession inserts a confession and returns the assigned id.
func (p *Postgres) CreateConfession(ctx context.Context, c *Confession) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO confessions(author_id, author_token, channel_chat_id, channel_message_id, category, text)
		VALUES($1, $2, $3, $4, $5, $6) RETURNING id
	`, c.AuthorID, c.AuthorToken, c.ChannelChatID, c.ChannelMessageID, c.Category, c.Text).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert confession: %w", err)
	}
	return id, nil
}

// LastConfessionAt returns when the author last confessed. ok is false for
// an author with no prior confessions.
func (p *Postgres) LastConfessionAt(ctx context.Context, authorID int64) (t time.Time, ok bool, err error) {
	err = p.pool.QueryRow(ctx, `
		SELECT created_at FROM confessions WHERE author_id = $1 ORDER BY created_at DESC LIMIT 1
	`, authorID).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("select last confession: %w", err)
	}
	return t, true, nil
}

// ConfessionText returns the sanitized text of a confession.
func (p *Postgres) ConfessionText(ctx context.Context, id int64) (string, error) {
	var text string
	err := p.pool.QueryRow(ctx, `SELECT text FROM confessions WHERE id = $1`, id).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select confession text: %w", err)
	}
	return text, nil
}

// PostRef returns a confession's public-post location and raw author id.
func (p *Postgres) PostRef(ctx context.Context, id int64) (*PostRef, error) {
	var ref PostRef
	err := p.pool.QueryRow(ctx, `
		SELECT channel_chat_id, channel_message_id, author_id FROM confessions WHERE id = $1
	`, id).Scan(&ref.ChatID, &ref.MessageID, &ref.AuthorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select post ref: %w", err)
	}
	return &ref, nil
}

// AddReaction inserts a reaction row. A second reaction of the same type by
// the same user on the same confession violates the unique constraint and is
// reported as ErrDuplicateReaction, never overwritten.
func (p *Postgres) AddReaction(ctx context.Context, confessionID, userID int64, typ ReactionType) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO reactions(confession_id, user_id, reaction_type) VALUES($1, $2, $3)
	`, confessionID, userID, string(typ))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateReaction
		}
		return fmt.Errorf("insert reaction: %w", err)
	}
	return nil
}

// AddComment inserts a comment referencing an existing confession.
func (p *Postgres) AddComment(ctx context.Context, confessionID, commenterID int64, text string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO comments(confession_id, commenter_user_id, text) VALUES($1, $2, $3)
	`, confessionID, commenterID, text)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ReactionCounts returns the reaction counts for a confession grouped by type.
func (p *Postgres) ReactionCounts(ctx context.Context, confessionID int64) (map[ReactionType]int, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT reaction_type, COUNT(*) FROM reactions WHERE confession_id = $1 GROUP BY reaction_type
	`, confessionID)
	if err != nil {
		return nil, fmt.Errorf("select reaction counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[ReactionType]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan reaction count: %w", err)
		}
		counts[ReactionType(typ)] = n
	}
	return counts, rows.Err()
}

// CommentCount returns the number of comments on a confession.
func (p *Postgres) CommentCount(ctx context.Context, confessionID int64) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM comments WHERE confession_id = $1
	`, confessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("select comment count: %w", err)
	}
	return n, nil
}

// Comments returns the comment texts for a confession, oldest first.
func (p *Postgres) Comments(ctx context.Context, confessionID int64) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT text FROM comments WHERE confession_id = $1 ORDER BY id
	`, confessionID)
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}

// Leaderboard returns the top confessions by reaction count within the
// trailing window, ties broken by descending id.
func (p *Postgres) Leaderboard(ctx context.Context, window time.Duration, limit int) ([]Ranked, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := p.pool.Query(ctx, `
		SELECT c.id, c.text, COUNT(r.id) AS total_reactions
		FROM confessions c
		LEFT JOIN reactions r ON c.id = r.confession_id
		WHERE c.created_at >= $1
		GROUP BY c.id, c.text
		ORDER BY total_reactions DESC, c.id DESC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var ranked []Ranked
	for rows.Next() {
		var r Ranked
		if err := rows.Scan(&r.ID, &r.Text, &r.Reactions); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		ranked = append(ranked, r)
	}
	return ranked, rows.Err()
}

// ByAuthor returns an author's own confessions with reaction counts, newest
// first. A zero window means no time filter.
func (p *Postgres) ByAuthor(ctx context.Context, authorID int64, window time.Duration) ([]AuthorPost, error) {
	query := `
		SELECT c.id, c.text, c.channel_message_id, COUNT(r.id) AS total_reactions
		FROM confessions c
		LEFT JOIN reactions r ON c.id = r.confession_id
		WHERE c.author_id = $1`
	args := []any{authorID}
	if window > 0 {
		query += ` AND c.created_at >= $2`
		args = append(args, time.Now().UTC().Add(-window))
	}
	query += `
		GROUP BY c.id, c.text, c.channel_message_id
		ORDER BY c.id DESC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select author confessions: %w", err)
	}
	defer rows.Close()

	var posts []AuthorPost
	for rows.Next() {
		var post AuthorPost
		if err := rows.Scan(&post.ID, &post.Text, &post.MessageID, &post.Reactions); err != nil {
			return nil, fmt.Errorf("scan author confession: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}
