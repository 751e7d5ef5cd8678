package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPRepository stores password-reset verification codes in Redis with a
// per-entry expiry. Each code lives under its own key, so codes expire
// individually and no shared in-process state is involved.
type OTPRepository struct {
	client *redis.Client
}

// NewOTPRepository constructs the repository.
func NewOTPRepository(client *redis.Client) *OTPRepository {
	return &OTPRepository{client: client}
}

func otpKey(email string) string {
	return "otp:" + email
}

// Store saves the code for the email, replacing any earlier code.
func (r *OTPRepository) Store(ctx context.Context, email, code string, ttl time.Duration) error {
	if err := r.client.Set(ctx, otpKey(email), code, ttl).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

// Verify reports whether the code matches the stored value. A match
// consumes the code so it cannot be replayed.
func (r *OTPRepository) Verify(ctx context.Context, email, code string) (bool, error) {
	stored, err := r.client.Get(ctx, otpKey(email)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("load otp: %w", err)
	}
	if stored != code {
		return false, nil
	}
	if err := r.client.Del(ctx, otpKey(email)).Err(); err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return true, nil
}
