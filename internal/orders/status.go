package orders

import "github.com/ariefcatur/go-marketplace-core/internal/apperr"

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusPreparing  Status = "preparing"
	StatusReady      Status = "ready"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusAccepted: true, StatusCancelled: true},
	StatusAccepted:   {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:  {StatusReady: true, StatusCancelled: true},
	StatusReady:      {StatusDelivering: true, StatusCancelled: true},
	StatusDelivering: {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// StatusMismatch is the error a store returns when u.ExpectedStatus no longer
// holds. A status change reads as the transition that lost the race.
func StatusMismatch(current Status, u Update) error {
	if u.Status != nil {
		return apperr.InvalidTransition(string(current), string(*u.Status))
	}
	return apperr.ErrConcurrencyConflict
}
