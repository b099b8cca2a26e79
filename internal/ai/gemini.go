// Package ai talks to the hosted Gemini models over their REST streaming API.
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/waabox/mercury/internal/domain"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"
)

// ErrMissingAPIKey is returned by NewClient when no API key is configured.
var ErrMissingAPIKey = errors.New("google generative AI API key is not configured: set GOOGLE_GENERATIVE_AI_API_KEY")

// Client implements domain.ChatModel for Gemini.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

var _ domain.ChatModel = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Streams are bounded by the request
// context, so the default client has no timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithLogger sets the logger used for request debug output.
func WithLogger(log zerolog.Logger) Option {
	return func(cl *Client) {
		cl.log = log
	}
}

// NewClient creates a Gemini client.
// baseURL is used for testing; pass empty string to use the public endpoint.
func NewClient(apiKey, model, baseURL string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Generate sends req and returns the complete reply.
func (c *Client) Generate(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	return c.Stream(ctx, req, nil)
}

// Stream sends req and calls onChunk with every text fragment as it arrives.
func (c *Client) Stream(ctx context.Context, req domain.ChatRequest, onChunk func(string)) (domain.ChatResponse, error) {
	body, err := buildRequest(req)
	if err != nil {
		return domain.ChatResponse{}, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	c.log.Debug().Str("model", c.model).Int("messages", len(req.Messages)).Strs("tools", req.Tools).Msg("sending model request")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return domain.ChatResponse{}, apiError(resp)
	}
	return readStream(resp.Body, onChunk)
}

func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var e struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	msg := resp.Status
	if json.Unmarshal(b, &e) == nil && e.Error.Message != "" {
		msg = fmt.Sprintf("%s: %s", resp.Status, e.Error.Message)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("gemini API error: %s: %w", msg, domain.ErrUnauthorized)
	}
	return fmt.Errorf("gemini API error: %s", msg)
}

// readStream consumes 'data: <json>' lines until the body ends.
func readStream(r io.Reader, onChunk func(string)) (domain.ChatResponse, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var (
		out     domain.ChatResponse
		content strings.Builder
	)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return domain.ChatResponse{}, fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return domain.ChatResponse{}, fmt.Errorf("gemini stream error: %s", chunk.Error.Message)
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				text := p.render()
				if text == "" {
					continue
				}
				content.WriteString(text)
				if onChunk != nil {
					onChunk(text)
				}
			}
			if cand.FinishReason != "" {
				out.FinishReason = normalizeFinishReason(cand.FinishReason)
			}
		}
		if u := chunk.UsageMetadata; u != nil {
			out.Usage = domain.Usage{
				PromptTokens:     u.PromptTokenCount,
				CompletionTokens: u.CandidatesTokenCount,
				TotalTokens:      u.TotalTokenCount,
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("reading stream: %w", err)
	}
	out.Content = content.String()
	return out, nil
}

func normalizeFinishReason(r string) string {
	switch r {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return "content-filter"
	default:
		return strings.ToLower(r)
	}
}

func buildRequest(req domain.ChatRequest) (generateRequest, error) {
	var body generateRequest
	system := []string{}
	if req.System != "" {
		system = append(system, req.System)
	}
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			body.Contents = append(body.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	if len(body.Contents) == 0 {
		return generateRequest{}, errors.New("no messages to send")
	}
	if len(system) > 0 {
		body.SystemInstruction = &content{Parts: []part{{Text: strings.Join(system, "\n\n")}}}
	}
	for _, id := range req.Tools {
		t, err := toolSpec(id)
		if err != nil {
			return generateRequest{}, err
		}
		body.Tools = append(body.Tools, t)
	}
	return body, nil
}

// Wire types for the generateContent API.

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []json.RawMessage `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text                string               `json:"text,omitempty"`
	ExecutableCode      *executableCode      `json:"executableCode,omitempty"`
	CodeExecutionResult *codeExecutionResult `json:"codeExecutionResult,omitempty"`
}

type executableCode struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type codeExecutionResult struct {
	Outcome string `json:"outcome"`
	Output  string `json:"output"`
}

// render turns a response part into the text shown to the user.
func (p part) render() string {
	switch {
	case p.Text != "":
		return p.Text
	case p.ExecutableCode != nil:
		return fmt.Sprintf("\n```%s\n%s\n```\n", strings.ToLower(p.ExecutableCode.Language), p.ExecutableCode.Code)
	case p.CodeExecutionResult != nil && p.CodeExecutionResult.Output != "":
		return fmt.Sprintf("\n```\n%s\n```\n", p.CodeExecutionResult.Output)
	}
	return ""
}

type streamChunk struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}
