package deviceflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func TestRequestCode_RetriesUserCodeInUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	issue := func(context.Context, string) (string, int, error) { return "tok", 60, nil }
	flow := NewFlow(store, "http://localhost/device", issue)

	flow.newUserCode = sequence("BCDF-GHJK")
	first, err := flow.RequestCode(ctx, "cli", "")
	require.NoError(t, err)

	flow.newUserCode = sequence("BCDF-GHJK", "BCDF-GHJK", "LMNP-QRST")
	second, err := flow.RequestCode(ctx, "cli", "")
	require.NoError(t, err)
	assert.Equal(t, "LMNP-QRST", second.UserCode)

	// the first request still resolves through its own user code
	code, err := flow.Lookup(ctx, first.UserCode)
	require.NoError(t, err)
	assert.Equal(t, first.DeviceCode, code.DeviceCode)
}

func TestRequestCode_GivesUpWhenEveryUserCodeIsTaken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	flow := NewFlow(store, "http://localhost/device", nil, WithExpiry(time.Minute))
	flow.newUserCode = sequence("BCDF-GHJK")

	_, err := flow.RequestCode(ctx, "cli", "")
	require.NoError(t, err)
	_, err = flow.RequestCode(ctx, "cli", "")
	assert.ErrorContains(t, err, "no free user code")
}
