package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"remna-shop/internal/infra/redis"
)

// Service stores one saved cart per user with a TTL. Reads and deletes only
// from the post-credit effects side; the reconciliation engine itself never
// writes here.
type Service struct {
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
}

func NewService(kv KV, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{kv: kv, ttl: ttl, logger: logger}
}

func key(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func (s *Service) Save(ctx context.Context, c Cart) error {
	c.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := s.kv.Set(ctx, key(c.UserID), string(data), s.ttl); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}

	s.logger.Debug("cart saved", "user_id", c.UserID, "price", c.Price)
	return nil
}

// Get returns (nil, nil) when the user has no saved cart.
func (s *Service) Get(ctx context.Context, userID int64) (*Cart, error) {
	data, err := s.kv.Get(ctx, key(userID))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	var c Cart
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		// A corrupt cart is dropped rather than wedging auto-purchase.
		s.logger.Warn("dropping unreadable cart", "user_id", userID, "error", err)
		_ = s.kv.Delete(ctx, key(userID))
		return nil, nil
	}

	return &c, nil
}

func (s *Service) Delete(ctx context.Context, userID int64) error {
	if err := s.kv.Delete(ctx, key(userID)); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
