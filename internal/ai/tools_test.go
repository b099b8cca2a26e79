package ai_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/waabox/mercury/internal/ai"
)

func TestToolRegistry_StartsDisabled(t *testing.T) {
	r := ai.NewToolRegistry()
	if got := r.Enabled(); len(got) != 0 {
		t.Errorf("expected no enabled tools, got %v", got)
	}
	if got := len(r.Tools()); got != 3 {
		t.Errorf("expected 3 tools, got %d", got)
	}
}

func TestToolRegistry_Toggle(t *testing.T) {
	r := ai.NewToolRegistry()

	on, err := r.Toggle("code_execution")
	if err != nil || !on {
		t.Fatalf("expected tool enabled, got %v, %v", on, err)
	}
	if diff := cmp.Diff([]string{"Code Execution"}, r.EnabledNames()); diff != "" {
		t.Errorf("enabled names mismatch (-want +got):\n%s", diff)
	}

	on, err = r.Toggle("code_execution")
	if err != nil || on {
		t.Fatalf("expected tool disabled, got %v, %v", on, err)
	}
}

func TestToolRegistry_ToggleUnknown(t *testing.T) {
	if _, err := ai.NewToolRegistry().Toggle("teleport"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestToolRegistry_EnableIsExact(t *testing.T) {
	r := ai.NewToolRegistry()
	r.Enable([]string{"google_search", "code_execution"})
	r.Enable([]string{"url_context", "google_search"})

	if diff := cmp.Diff([]string{"google_search", "url_context"}, r.Enabled()); diff != "" {
		t.Errorf("enabled mismatch (-want +got):\n%s", diff)
	}
}

func TestToolRegistry_Reset(t *testing.T) {
	r := ai.NewToolRegistry()
	r.Enable([]string{"google_search", "code_execution", "url_context"})
	r.Reset()
	if got := r.Enabled(); len(got) != 0 {
		t.Errorf("expected no enabled tools after reset, got %v", got)
	}
}
