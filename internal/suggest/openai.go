package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
)

const systemPrompt = `You adapt endurance training plans. You receive JSON with triggerTypes,
currentWeekIndex and a draft (weeks and sessions). Reply with a single JSON object:
{"diff": [...], "rationaleText": "...", "respectsLocks": true|false}.
Each diff element has an "op" field, one of:
UPDATE_SESSION {sessionId, patch:{discipline?, type?, durationMinutes?, notes?}},
SWAP_SESSION_TYPE {sessionId, newType},
REMOVE_SESSION {sessionId},
ADJUST_WEEK_VOLUME {weekIndex, pctDelta between -0.9 and 1},
ADD_NOTE {target:{kind:"session",sessionId}|{kind:"week",weekIndex}, text}.
Never touch locked weeks or sessions or weeks before currentWeekIndex.`

var ErrEmptyCompletion = errors.New("openai returned no choices")

// ChatCompleter is the subset of the go-openai client the provider uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures the AI provider.
type OpenAIConfig struct {
	Model             string
	RequestsPerMinute int
	Timeout           time.Duration
}

// OpenAIProvider asks a chat model for a diff. Calls are paced by a token
// bucket shared by all callers of the provider.
type OpenAIProvider struct {
	client  ChatCompleter
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenAIClient builds a go-openai client for apiKey.
func NewOpenAIClient(apiKey string) *openai.Client {
	return openai.NewClient(apiKey)
}

func NewOpenAIProvider(client ChatCompleter, cfg OpenAIConfig, logger *slog.Logger) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		logger:  logger,
	}
}

type completion struct {
	Diff          json.RawMessage `json:"diff"`
	RationaleText string          `json:"rationaleText"`
	RespectsLocks bool            `json:"respectsLocks"`
}

func (p *OpenAIProvider) Suggest(ctx context.Context, in Input) (*Output, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("openai rate limit wait: %w", err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal suggestion input: %w", err)
	}
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	}

	p.logger.DebugContext(ctx, "requesting plan suggestion", "model", p.model, "triggers", in.TriggerTypes)
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	var c completion
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &c); err != nil {
		return nil, domain.Errorf(domain.CodeInvalidDiff, "model reply is not JSON: %v", err)
	}
	if len(c.Diff) == 0 {
		return nil, domain.Errorf(domain.CodeInvalidDiff, "model reply has no diff")
	}
	d, err := plandiff.Parse(c.Diff)
	if err != nil {
		return nil, err
	}
	return &Output{
		Diff:          d,
		RationaleText: c.RationaleText,
		RespectsLocks: c.RespectsLocks,
		Source:        domain.SourceAI,
	}, nil
}
