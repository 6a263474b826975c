package inventory

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/ariefcatur/go-realtime-market/internal/metrics"
	"go.uber.org/zap"
)

type instrumented struct {
	next Store
	log  *zap.Logger
}

// Instrument wraps s with reservation metrics and debug logs.
func Instrument(s Store, log *zap.Logger) Store {
	return &instrumented{next: s, log: log}
}

func (i *instrumented) Reserve(ctx context.Context, t Target, qty int) (*Reservation, error) {
	r, err := i.next.Reserve(ctx, t, qty)
	switch {
	case err == nil:
		metrics.RecordReservation(string(t.Kind), "reserved")
		i.log.Debug("stock reserved", zap.Stringer("target", t), zap.Int("qty", qty))
	case errors.Is(err, apperr.ErrOutOfStock):
		metrics.RecordReservation(string(t.Kind), "out_of_stock")
		i.log.Debug("stock rejected", zap.Stringer("target", t), zap.Int("qty", qty), zap.Error(err))
	default:
		metrics.RecordReservation(string(t.Kind), "error")
	}
	return r, err
}

func (i *instrumented) Release(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	already := r.Released
	if err := i.next.Release(ctx, r); err != nil {
		return err
	}
	if !already {
		metrics.RecordRelease(string(r.Target.Kind))
		i.log.Debug("stock released", zap.Stringer("target", r.Target), zap.Int("qty", r.Quantity))
	}
	return nil
}

func (i *instrumented) Available(ctx context.Context, t Target) (int, error) {
	return i.next.Available(ctx, t)
}
