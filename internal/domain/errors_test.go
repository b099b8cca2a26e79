// internal/domain/errors_test.go
package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/waabox/mercury/internal/domain"
)

func TestErrUnauthorized_CanBeDetectedWithErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("resolving session: %w", domain.ErrUnauthorized)
	if !errors.Is(wrapped, domain.ErrUnauthorized) {
		t.Error("expected errors.Is to detect ErrUnauthorized in wrapped error")
	}
}

func TestErrNotFound_IsDistinctFromUnauthorized(t *testing.T) {
	wrapped := fmt.Errorf("conversation abc: %w", domain.ErrNotFound)
	if errors.Is(wrapped, domain.ErrUnauthorized) {
		t.Error("ErrNotFound must not match ErrUnauthorized")
	}
	if !errors.Is(wrapped, domain.ErrNotFound) {
		t.Error("expected errors.Is to detect ErrNotFound in wrapped error")
	}
}

func TestMode_Valid(t *testing.T) {
	for _, m := range []domain.Mode{domain.ModeChat, domain.ModeTool, domain.ModeAgent} {
		if !m.Valid() {
			t.Errorf("expected mode %q to be valid", m)
		}
	}
	if domain.Mode("group").Valid() {
		t.Error("expected unknown mode to be invalid")
	}
}
