package telegram

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const pollTimeout = 50 * time.Second

// HandlerFunc processes one inbound update. The poller invokes it in its own
// goroutine, so updates from different users are handled fully in parallel.
type HandlerFunc func(ctx context.Context, u *Update)

// Poller drives the long-polling loop against getUpdates.
type Poller struct {
	client *Client
	offset int64
}

// NewPoller creates a poller for the given client.
func NewPoller(client *Client) *Poller {
	return &Poller{client: client}
}

// Run polls until ctx is cancelled. Transport errors are logged and the loop
// backs off briefly rather than dying; Telegram redelivers unacknowledged
// updates anyway.
func (p *Poller) Run(ctx context.Context, handle HandlerFunc) error {
	log.Info().Msg("starting long-poll update loop")
	for {
		updates, err := p.client.GetUpdates(ctx, p.offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("getUpdates failed, backing off")
			select {
			case <-time.After(3 * time.Second):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for i := range updates {
			u := updates[i]
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			go handle(ctx, &u)
		}
	}
}
