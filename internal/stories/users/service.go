package users

import (
	"context"
	"fmt"
)

// Service provides account lookups for the bot surface.
type Service struct {
	storage Storage
}

func NewService(storage Storage) *Service {
	return &Service{storage: storage}
}

func (s *Service) GetOrCreateByTelegramID(ctx context.Context, telegramID int64, referrerID *int64) (*User, error) {
	user, err := s.storage.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user, err = s.storage.CreateUser(ctx, telegramID, referrerID)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// ResolveReferrer maps a referrer's telegram id from a deep link to the
// internal user id. Unknown or self referrers resolve to nil.
func (s *Service) ResolveReferrer(ctx context.Context, referrerTelegramID, newUserTelegramID int64) (*int64, error) {
	if referrerTelegramID == 0 || referrerTelegramID == newUserTelegramID {
		return nil, nil
	}
	referrer, err := s.storage.GetUserByTelegramID(ctx, referrerTelegramID)
	if err != nil {
		return nil, fmt.Errorf("resolve referrer: %w", err)
	}
	if referrer == nil {
		return nil, nil
	}
	return &referrer.ID, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	user, err := s.storage.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d not found", id)
	}
	return user, nil
}
