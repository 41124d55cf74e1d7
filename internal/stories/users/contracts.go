package users

import "context"

type Storage interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	CreateUser(ctx context.Context, telegramID int64, referrerID *int64) (*User, error)
}
