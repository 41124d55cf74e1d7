package users

import "time"

// User is the bot account. Balance is minor currency units and is mutated
// only inside the reconciliation engine's unit of work.
type User struct {
	ID           int64
	TelegramID   int64
	Balance      int64
	ReferrerID   *int64
	FirstTopupAt *time.Time
	Language     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasToppedUp reports whether the first-topup flag was already set.
func (u *User) HasToppedUp() bool {
	return u.FirstTopupAt != nil
}
