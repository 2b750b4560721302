package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Schema statements are idempotent so Migrate can run at every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS confessions (
		id                 BIGSERIAL PRIMARY KEY,
		author_id          BIGINT NOT NULL,
		author_token       TEXT NOT NULL,
		channel_chat_id    BIGINT NOT NULL,
		channel_message_id BIGINT NOT NULL,
		category           TEXT NOT NULL,
		text               TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_confessions_author_created
		ON confessions(author_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS reactions (
		id            BIGSERIAL PRIMARY KEY,
		confession_id BIGINT NOT NULL REFERENCES confessions(id),
		user_id       BIGINT NOT NULL,
		reaction_type TEXT NOT NULL,
		UNIQUE(confession_id, user_id, reaction_type)
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id                BIGSERIAL PRIMARY KEY,
		confession_id     BIGINT NOT NULL REFERENCES confessions(id),
		commenter_user_id BIGINT NOT NULL,
		text              TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables and indexes if they do not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	log.Info().Msg("database schema up to date")
	return nil
}
