package order

import (
	"fmt"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/user"
)

var transitions = map[Status][]Status{
	StatusPlaced:         {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup: {StatusCompleted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPlaced, StatusConfirmed, StatusReadyForPickup, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// CanTransition reports whether to directly follows from.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from s in one step.
func Next(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// authorize checks that actor may move o to the target status. The
// transition itself must already be valid.
func authorize(actor user.User, o *Order, to Status) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.ID == o.SellerID:
		return nil
	case actor.ID == o.CustomerID:
		if to == StatusCancelled {
			return nil
		}
		return fmt.Errorf("%w: customers can only cancel their orders", apperr.ErrForbidden)
	default:
		return fmt.Errorf("%w: not your order", apperr.ErrForbidden)
	}
}

func checkTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, from, to)
	}
	return nil
}
