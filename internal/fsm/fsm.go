// Package fsm holds the status graphs of every entity the engine mutates.
// It is pure: no I/O, no clock.
package fsm

import (
	"fmt"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"sort"
)

type Kind string

const (
	KindOrder       Kind = "order"
	KindPayment     Kind = "payment"
	KindListing     Kind = "listing"
	KindMarketOrder Kind = "market_order"
)

// Status values are shared string enums; each kind only uses its own subset.
const (
	Pending   = "Pending"
	Confirmed = "Confirmed"
	Shipped   = "Shipped"
	Delivered = "Delivered"
	Cancelled = "Cancelled"
	Completed = "Completed"

	Paid     = "Paid"
	Refunded = "Refunded"

	Active = "Active"
	Sold   = "Sold"
)

var validNext = map[Kind]map[string]map[string]bool{
	KindOrder: {
		Pending:   {Confirmed: true, Cancelled: true},
		Confirmed: {Shipped: true, Cancelled: true},
		Shipped:   {Delivered: true},
		Delivered: {},
		Cancelled: {},
	},
	KindPayment: {
		Pending:  {Paid: true},
		Paid:     {Refunded: true},
		Refunded: {},
	},
	KindListing: {
		Active:    {Sold: true, Cancelled: true},
		Sold:      {},
		Cancelled: {},
	},
	KindMarketOrder: {
		Pending:   {Confirmed: true, Cancelled: true},
		Confirmed: {Completed: true},
		Completed: {},
		Cancelled: {},
	},
}

func CanTransition(kind Kind, from, to string) bool {
	return validNext[kind][from][to]
}

// Next lists the statuses reachable from `from` in one step, sorted.
func Next(kind Kind, from string) []string {
	out := make([]string, 0, len(validNext[kind][from]))
	for s := range validNext[kind][from] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Known reports whether s is a status of kind.
func Known(kind Kind, s string) bool {
	_, ok := validNext[kind][s]
	return ok
}

func IsTerminal(kind Kind, s string) bool {
	next, ok := validNext[kind][s]
	return ok && len(next) == 0
}

type TransitionError struct {
	Kind Kind
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Kind, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == apperr.ErrInvalidTransition }

// Check returns a *TransitionError when from -> to is not an edge of kind.
func Check(kind Kind, from, to string) error {
	if !CanTransition(kind, from, to) {
		return &TransitionError{Kind: kind, From: from, To: to}
	}
	return nil
}
