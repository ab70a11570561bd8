package orders

import (
	"time"

	"github.com/ariefcatur/order-lifecycle/internal/apperr"
)

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCanceled  Status = "CANCELED"
)

// CancellationWindow bounds how long after creation a CONFIRMED order may
// still be canceled.
const CancellationWindow = 10 * time.Minute

var validNext = map[Status]map[Status]bool{
	StatusCreated:   {StatusConfirmed: true, StatusCanceled: true},
	StatusConfirmed: {StatusCanceled: true},
	StatusCanceled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// CheckConfirm reports why o cannot move to CONFIRMED, if it cannot.
func CheckConfirm(o *Order) error {
	if !CanTransition(o.Status, StatusConfirmed) {
		return apperr.ErrInvalidOrderStatus
	}
	return nil
}

// CheckCancel applies the cancel rules to an order in status that was
// created elapsed ago. Stores measure elapsed on their own clock, the same
// one that stamped created_at.
func CheckCancel(status Status, elapsed time.Duration) error {
	switch status {
	case StatusCanceled:
		return apperr.ErrOrderAlreadyCanceled
	case StatusConfirmed:
		if elapsed > CancellationWindow {
			return apperr.ErrCancellationWindowExpired
		}
	}
	if !CanTransition(status, StatusCanceled) {
		return apperr.ErrInvalidOrderStatus
	}
	return nil
}
