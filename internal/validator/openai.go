// Package validator asks a language model whether a scored form really is a
// contact form.
package validator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

const systemPrompt = "Analyze HTML forms to determine if they are contact forms. " +
	"Respond with a single integer: -2 (definitely not), -1 (unlikely), " +
	"1 (likely), or 2 (definitely a contact form)."

const maxFormHTML = 2000

var verdictPattern = regexp.MustCompile(`-?\d+`)

// chatClient is the slice of the OpenAI client the validator needs.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls the validator.
type Config struct {
	APIKey         string
	Model          string
	Timeout        time.Duration
	RequestsPerSec float64
}

// Validator implements parsing.FormValidator on the OpenAI chat API.
type Validator struct {
	client  chatClient
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Validator backed by the OpenAI API.
func New(cfg Config, logger *zap.Logger) *Validator {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	return &Validator{
		client:  openai.NewClient(cfg.APIKey),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Validate asks the model for a verdict on one form candidate. Any transport,
// rate-limit or parse failure returns JudgmentDecline with the error so the
// caller can fail open.
func (v *Validator) Validate(ctx context.Context, candidate parsing.FormCandidate, pageContext string) (parsing.Judgment, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return parsing.JudgmentDecline, fmt.Errorf("validator rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	formHTML := candidate.HTML
	if len(formHTML) > maxFormHTML {
		formHTML = formHTML[:maxFormHTML] + "\n... (truncated)"
	}
	if pageContext == "" {
		pageContext = candidate.Context
	}
	if len(pageContext) > 300 {
		pageContext = pageContext[:300]
	}
	userPrompt := fmt.Sprintf("Context: %s\n\nForm HTML: %s", pageContext, formHTML)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		return parsing.JudgmentDecline, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return parsing.JudgmentDecline, fmt.Errorf("chat completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	verdict, err := parseVerdict(content)
	if err != nil {
		return parsing.JudgmentDecline, err
	}

	v.logger.Debug("form validated",
		zap.String("action_url", candidate.ActionURL),
		zap.String("raw", content),
		zap.Int("verdict", verdict),
	)

	switch {
	case verdict >= 1:
		return parsing.JudgmentAccept, nil
	case verdict <= -1:
		return parsing.JudgmentReject, nil
	default:
		return parsing.JudgmentDecline, nil
	}
}

func parseVerdict(content string) (int, error) {
	match := verdictPattern.FindString(content)
	if match == "" {
		return 0, fmt.Errorf("no integer verdict in %q", content)
	}
	verdict, err := strconv.Atoi(match)
	if err != nil {
		return 0, fmt.Errorf("parse verdict %q: %w", match, err)
	}
	return verdict, nil
}
