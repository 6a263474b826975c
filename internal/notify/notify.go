package notify

import (
	"context"
	"errors"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Change describes one status transition of an order, payment, listing or
// market order. From is empty on creation.
type Change struct {
	Kind     string    `json:"entity_kind"`
	EntityID int64     `json:"entity_id"`
	From     string    `json:"old_status"`
	To       string    `json:"new_status"`
	At       time.Time `json:"at"`
}

type Notifier interface {
	NotifyStatusChange(ctx context.Context, c Change) error
}

// Dispatch is fire-and-forget: sink failures are logged, never returned.
func Dispatch(ctx context.Context, log *zap.Logger, n Notifier, c Change) {
	if n == nil {
		return
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	if err := n.NotifyStatusChange(ctx, c); err != nil {
		log.Warn("status notification failed",
			zap.String("kind", c.Kind),
			zap.Int64("id", c.EntityID),
			zap.String("from", c.From),
			zap.String("to", c.To),
			zap.Error(err),
		)
	}
}

// Log writes every change to a zap logger.
type Log struct{ Logger *zap.Logger }

func (l Log) NotifyStatusChange(_ context.Context, c Change) error {
	l.Logger.Info("status changed",
		zap.String("kind", c.Kind),
		zap.Int64("id", c.EntityID),
		zap.String("from", c.From),
		zap.String("to", c.To),
		zap.Time("at", c.At),
	)
	return nil
}

// Multi fans a change out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) NotifyStatusChange(ctx context.Context, c Change) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyStatusChange(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps changes in memory. Used by tests and by dry runs.
type Recorder struct {
	mu      sync.Mutex
	changes []Change
	Err     error
}

func (r *Recorder) NotifyStatusChange(_ context.Context, c Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return r.Err
}

func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Change, len(r.changes))
	copy(out, r.changes)
	return out
}
