package agent_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/waabox/mercury/internal/agent"
	"github.com/waabox/mercury/internal/domain"
)

// stubModel replies with a fixed text.
type stubModel struct {
	reply string
	err   error
	got   domain.ChatRequest
}

func (s *stubModel) Stream(_ context.Context, req domain.ChatRequest, onChunk func(string)) (domain.ChatResponse, error) {
	s.got = req
	if s.err != nil {
		return domain.ChatResponse{}, s.err
	}
	if onChunk != nil {
		onChunk(s.reply)
	}
	return domain.ChatResponse{Content: s.reply, FinishReason: "stop"}, nil
}

const todoPlan = `{
  "folderName": "todo-app",
  "description": "A todo list",
  "files": [
    {"path": "README.md", "content": "# Todo"},
    {"path": "src/index.js", "content": "console.log('hi')"}
  ],
  "setupCommands": ["npm install", "npm start"]
}`

func TestParsePlan_StripsFences(t *testing.T) {
	p, err := agent.ParsePlan("```json\n" + todoPlan + "\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FolderName != "todo-app" || len(p.Files) != 2 {
		t.Errorf("unexpected plan: %+v", p)
	}
}

func TestParsePlan_ToleratesProse(t *testing.T) {
	p, err := agent.ParsePlan("Here is your app:\n" + todoPlan + "\nEnjoy!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"npm install", "npm start"}, p.SetupCommands); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePlan_RejectsGarbage(t *testing.T) {
	if _, err := agent.ParsePlan("I cannot help with that."); err == nil {
		t.Fatal("expected error for reply without JSON")
	}
}

func TestPlanValidate(t *testing.T) {
	file := []agent.File{{Path: "main.go", Content: "package main"}}
	tests := []struct {
		name string
		plan agent.Plan
		ok   bool
	}{
		{"valid", agent.Plan{FolderName: "app", Files: file}, true},
		{"nested file", agent.Plan{FolderName: "app", Files: []agent.File{{Path: "a/b/c.txt"}}}, true},
		{"empty folder", agent.Plan{FolderName: "", Files: file}, false},
		{"dot dot folder", agent.Plan{FolderName: "..", Files: file}, false},
		{"folder with slash", agent.Plan{FolderName: "a/b", Files: file}, false},
		{"no files", agent.Plan{FolderName: "app"}, false},
		{"absolute path", agent.Plan{FolderName: "app", Files: []agent.File{{Path: "/etc/passwd"}}}, false},
		{"escaping path", agent.Plan{FolderName: "app", Files: []agent.File{{Path: "../../evil.sh"}}}, false},
		{"sneaky escape", agent.Plan{FolderName: "app", Files: []agent.File{{Path: "src/../../evil.sh"}}}, false},
		{"duplicate", agent.Plan{FolderName: "app", Files: []agent.File{{Path: "a.txt"}, {Path: "./a.txt"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGenerate_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	model := &stubModel{reply: todoPlan}
	gen := agent.NewGenerator(model, zerolog.Nop())

	var streamed strings.Builder
	res, err := gen.Generate(context.Background(), "a todo app", dir, func(s string) { streamed.WriteString(s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.FolderName != "todo-app" {
		t.Errorf("unexpected result: %+v", res)
	}
	if diff := cmp.Diff([]string{"README.md", "src/index.js"}, res.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	b, err := os.ReadFile(filepath.Join(dir, "todo-app", "src", "index.js"))
	if err != nil {
		t.Fatalf("reading generated file: %v", err)
	}
	if string(b) != "console.log('hi')" {
		t.Errorf("unexpected content %q", b)
	}
	if streamed.Len() == 0 {
		t.Error("expected streamed output")
	}
	if !strings.Contains(model.got.Messages[0].Content, "a todo app") {
		t.Errorf("prompt must contain the description, got %q", model.got.Messages[0].Content)
	}
	if model.got.System == "" {
		t.Error("expected a system prompt")
	}

	summary := res.Summary()
	if !strings.Contains(summary, "todo-app") || !strings.Contains(summary, "Files created: 2") || !strings.Contains(summary, "npm start") {
		t.Errorf("unexpected summary %q", summary)
	}
}

func TestGenerate_RefusesExistingFolder(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "todo-app"), 0755); err != nil {
		t.Fatal(err)
	}
	gen := agent.NewGenerator(&stubModel{reply: todoPlan}, zerolog.Nop())
	if _, err := gen.Generate(context.Background(), "a todo app", dir, nil); err == nil {
		t.Fatal("expected error when folder exists")
	}
}

func TestGenerate_EmptyDescription(t *testing.T) {
	gen := agent.NewGenerator(&stubModel{reply: todoPlan}, zerolog.Nop())
	if _, err := gen.Generate(context.Background(), "   ", t.TempDir(), nil); err == nil {
		t.Fatal("expected error for empty description")
	}
}

func TestGenerate_ModelError(t *testing.T) {
	boom := errors.New("quota exceeded")
	gen := agent.NewGenerator(&stubModel{err: boom}, zerolog.Nop())
	if _, err := gen.Generate(context.Background(), "app", t.TempDir(), nil); !errors.Is(err, boom) {
		t.Fatalf("expected model error, got %v", err)
	}
}
