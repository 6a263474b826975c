package orders

import "github.com/ariefcatur/go-realtime-market/internal/fsm"

type Status string

const (
	StatusPending   Status = fsm.Pending
	StatusConfirmed Status = fsm.Confirmed
	StatusShipped   Status = fsm.Shipped
	StatusDelivered Status = fsm.Delivered
	StatusCancelled Status = fsm.Cancelled
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = fsm.Pending
	PaymentPaid     PaymentStatus = fsm.Paid
	PaymentRefunded PaymentStatus = fsm.Refunded
)

func ParseStatus(s string) (Status, bool) {
	return Status(s), fsm.Known(fsm.KindOrder, s)
}
