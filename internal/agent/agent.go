// Package agent turns an application description into files on disk by
// asking the language model for a generation plan.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/waabox/mercury/internal/domain"
)

const systemPrompt = `You are an expert software engineer that generates complete, working applications.
Reply with a single JSON object and nothing else, using this shape:
{
  "folderName": "kebab-case-folder-name",
  "description": "one sentence summary",
  "files": [{"path": "relative/path/inside/folder", "content": "full file content"}],
  "setupCommands": ["command to install dependencies", "command to run the app"]
}
Rules:
- folderName is a single directory name without slashes.
- Every file path is relative to folderName and never starts with "/" or contains "..".
- Include every file needed to run the application, including a README.md.
- File contents are complete; never use placeholders.`

// File is one file of a generated application.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Plan is the model's description of the application to write.
type Plan struct {
	FolderName    string   `json:"folderName"`
	Description   string   `json:"description"`
	Files         []File   `json:"files"`
	SetupCommands []string `json:"setupCommands"`
}

// Result summarizes a completed generation.
type Result struct {
	Success    bool
	FolderName string
	Dir        string
	Files      []string
	Commands   []string
}

// Summary is the text stored as the assistant reply for a generation.
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generated application: %s\n", r.FolderName)
	fmt.Fprintf(&b, "Files created: %d\n", len(r.Files))
	b.WriteString("Setup commands:\n")
	b.WriteString(strings.Join(r.Commands, "\n"))
	return b.String()
}

// Generator asks a ChatModel for a Plan and writes it to disk.
type Generator struct {
	model domain.ChatModel
	log   zerolog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(model domain.ChatModel, log zerolog.Logger) *Generator {
	return &Generator{model: model, log: log}
}

// Generate builds the application described by description beneath workDir.
// onChunk receives the raw model output as it streams and may be nil.
func (g *Generator) Generate(ctx context.Context, description, workDir string, onChunk func(string)) (Result, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Result{}, errors.New("application description is empty")
	}

	resp, err := g.model.Stream(ctx, domain.ChatRequest{
		System: systemPrompt,
		Messages: []domain.ChatMessage{{
			Role:    domain.RoleUser,
			Content: "Create this application:\n\n" + description,
		}},
	}, onChunk)
	if err != nil {
		return Result{}, fmt.Errorf("requesting application plan: %w", err)
	}

	plan, err := ParsePlan(resp.Content)
	if err != nil {
		return Result{}, err
	}
	g.log.Debug().Str("folder", plan.FolderName).Int("files", len(plan.Files)).Msg("application plan received")

	written, err := WritePlan(workDir, plan)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success:    true,
		FolderName: plan.FolderName,
		Dir:        filepath.Join(workDir, plan.FolderName),
		Files:      written,
		Commands:   plan.SetupCommands,
	}, nil
}

// ParsePlan extracts the JSON plan from a model reply, tolerating markdown
// code fences and surrounding prose.
func ParsePlan(raw string) (Plan, error) {
	text := stripFences(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Plan{}, errors.New("model reply does not contain a JSON plan")
	}

	var p Plan
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return Plan{}, fmt.Errorf("decoding application plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Validate rejects plans that would write outside their own folder.
func (p Plan) Validate() error {
	name := p.FolderName
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid folder name %q", name)
	}
	if len(p.Files) == 0 {
		return errors.New("application plan contains no files")
	}
	seen := make(map[string]bool, len(p.Files))
	for _, f := range p.Files {
		clean := filepath.Clean(filepath.FromSlash(f.Path))
		if f.Path == "" || filepath.IsAbs(clean) || !filepath.IsLocal(clean) {
			return fmt.Errorf("invalid file path %q", f.Path)
		}
		if seen[clean] {
			return fmt.Errorf("duplicate file path %q", f.Path)
		}
		seen[clean] = true
	}
	return nil
}

// WritePlan writes the plan's files into workDir/FolderName, which must not
// exist yet. It returns the written paths relative to that folder.
func WritePlan(workDir string, p Plan) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	root := filepath.Join(workDir, p.FolderName)
	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("folder %s already exists", root)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", root, err)
	}

	written := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		rel := filepath.Clean(filepath.FromSlash(f.Path))
		target := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, fmt.Errorf("creating directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0644); err != nil {
			return written, fmt.Errorf("writing %s: %w", rel, err)
		}
		written = append(written, filepath.ToSlash(rel))
	}
	return written, nil
}
