package deviceflow

import (
	"context"
	"time"
)

// Store persists device codes until they expire or are redeemed.
// Get and GetByUserCode return (nil, nil) for unknown or expired codes.
type Store interface {
	Save(ctx context.Context, code *DeviceCode, ttl time.Duration) error
	Get(ctx context.Context, deviceCode string) (*DeviceCode, error)
	GetByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)
	// Delete removes the code and reports whether it was still present.
	// Only the caller that sees true may redeem an approved code.
	Delete(ctx context.Context, code *DeviceCode) (bool, error)
	Ping(ctx context.Context) error
}
