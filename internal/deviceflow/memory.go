package deviceflow

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps device codes in process memory. It suits a single
// server instance and tests.
type MemoryStore struct {
	codes     *ttlcache.Cache[string, DeviceCode]
	userCodes *ttlcache.Cache[string, string]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore and starts its expiry loop.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		codes: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, DeviceCode](),
		),
		userCodes: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
	go s.codes.Start()
	go s.userCodes.Start()
	return s
}

func (s *MemoryStore) Save(_ context.Context, code *DeviceCode, ttl time.Duration) error {
	s.codes.Set(code.DeviceCode, *code, ttl)
	s.userCodes.Set(code.UserCode, code.DeviceCode, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, deviceCode string) (*DeviceCode, error) {
	item := s.codes.Get(deviceCode)
	if item == nil || item.IsExpired() {
		return nil, nil
	}
	code := item.Value()
	return &code, nil
}

func (s *MemoryStore) GetByUserCode(ctx context.Context, userCode string) (*DeviceCode, error) {
	item := s.userCodes.Get(userCode)
	if item == nil || item.IsExpired() {
		return nil, nil
	}
	return s.Get(ctx, item.Value())
}

func (s *MemoryStore) Delete(_ context.Context, code *DeviceCode) (bool, error) {
	s.userCodes.Delete(code.UserCode)
	_, present := s.codes.GetAndDelete(code.DeviceCode)
	return present, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close stops the expiry loops.
func (s *MemoryStore) Close() error {
	s.codes.Stop()
	s.userCodes.Stop()
	return nil
}
