package cart

import "time"

// Cart is a pending subscription selection the user abandoned to go top up.
// It lives in the TTL key-value store, never in the relational ledger.
type Cart struct {
	UserID    int64     `json:"user_id"`
	PlanID    string    `json:"plan_id"`
	Months    int       `json:"months"`
	Devices   int       `json:"devices"`
	Price     int64     `json:"price"` // minor units
	CreatedAt time.Time `json:"created_at"`
}
