package engine

import (
	"context"

	"github.com/confessbot/internal/store"
)

// Aggregate is the recomputed reaction and comment counts shown on a
// confession's public controls.
type Aggregate struct {
	Relatable int
	Support   int
	Comments  int
}

// aggregate recomputes the counts from the store at call time. Nothing is
// cached in memory, so concurrent reactions from different users are never
// lost or double-counted.
func (e *Engine) aggregate(ctx context.Context, confessionID int64) (Aggregate, error) {
	counts, err := e.store.ReactionCounts(ctx, confessionID)
	if err != nil {
		return Aggregate{}, err
	}
	comments, err := e.store.CommentCount(ctx, confessionID)
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregate{
		Relatable: counts[store.ReactionRelatable],
		Support:   counts[store.ReactionSupport],
		Comments:  comments,
	}, nil
}
