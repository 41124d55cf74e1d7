package payment

import "time"

// Status is the raw lifecycle vocabulary stored on an intent. Gateways map
// their own vocabularies onto it; "paid" is terminal and never left.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Payment is a single attempt to move money from a user to the platform
// through one external gateway. Amount is minor currency units, never float.
type Payment struct {
	ID            int64
	UserID        int64
	Provider      string
	ExternalID    *string
	Amount        int64
	Currency      string
	Description   string
	Status        Status
	Paid          bool
	TransactionID *int64
	// Payload is the last raw gateway response, kept for audit only.
	Payload   *string
	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}

type GetCriteria struct {
	ID         *int64
	Provider   *string
	ExternalID *string
}

type ListCriteria struct {
	UserID       *int64
	Provider     *string
	Status       *Status
	CreatedAfter *time.Time
	OlderThan    *time.Time
	Limit        int
	Offset       int
}

type UpdateParams struct {
	Status     *Status
	ExternalID *string
	Payload    *string
}

type CreateParams struct {
	UserID      int64
	Provider    string
	ExternalID  *string
	Amount      int64
	Currency    string
	Description string
}
