package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/swarm/internal/logging"
)

// Usage totals the calls made by a Runner.
type Usage struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
}

// Runner sends a single prompt and returns the text of the answer.
type Runner struct {
	client    *Client
	maxTokens int64
	logger    *logging.Logger

	calls  atomic.Int64
	input  atomic.Int64
	output atomic.Int64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxTokens caps the answer length. The default fits a small JSON object.
func WithMaxTokens(n int64) RunnerOption {
	return func(r *Runner) { r.maxTokens = n }
}

// WithLogger logs every call with its token usage.
func WithLogger(l *logging.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l.With("api") }
}

// NewRunner creates a Runner on client.
func NewRunner(client *Client, opts ...RunnerOption) *Runner {
	r := &Runner{client: client, maxTokens: 256, logger: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Usage returns the totals so far.
func (r *Runner) Usage() Usage {
	return Usage{Calls: r.calls.Load(), InputTokens: r.input.Load(), OutputTokens: r.output.Load()}
}

// RunWithSystem sends userPrompt with an optional system prompt.
func (r *Runner) RunWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     r.client.Model(),
		MaxTokens: r.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	start := time.Now()
	resp, err := r.client.inner.Messages.New(ctx, params)
	if err != nil {
		r.logger.Log("%s call failed after %s: %v", r.client.Model(), time.Since(start).Round(time.Millisecond), err)
		return "", fmt.Errorf("messages call: %w", err)
	}

	r.calls.Add(1)
	r.input.Add(resp.Usage.InputTokens)
	r.output.Add(resp.Usage.OutputTokens)
	r.logger.Log("%s call: %d in / %d out tokens, %s", r.client.Model(),
		resp.Usage.InputTokens, resp.Usage.OutputTokens, time.Since(start).Round(time.Millisecond))

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return text.String(), nil
}

// DecodeJSON decodes the outermost JSON object of a model answer, which
// may be wrapped in prose or a code fence.
func DecodeJSON(answer string, target any) error {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in answer %q", clip(answer, 120))
	}
	raw := answer[start : end+1]
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("decode answer %q: %w", clip(raw, 120), err)
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
