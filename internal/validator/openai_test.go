package validator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

type fakeChat struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func newTestValidator(chat chatClient) *Validator {
	return &Validator{
		client:  chat,
		model:   "gpt-4o-mini",
		timeout: time.Second,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zap.NewNop(),
	}
}

func TestValidateVerdicts(t *testing.T) {
	cases := []struct {
		content string
		want    parsing.Judgment
	}{
		{"2", parsing.JudgmentAccept},
		{"1", parsing.JudgmentAccept},
		{"0", parsing.JudgmentDecline},
		{"-1", parsing.JudgmentReject},
		{"-2", parsing.JudgmentReject},
		{"Verdict: 2", parsing.JudgmentAccept},
	}
	for _, tc := range cases {
		t.Run(tc.content, func(t *testing.T) {
			v := newTestValidator(&fakeChat{content: tc.content})
			got, err := v.Validate(context.Background(), parsing.FormCandidate{HTML: "<form></form>"}, "ctx")
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestValidateTransportErrorDeclines(t *testing.T) {
	v := newTestValidator(&fakeChat{err: fmt.Errorf("boom")})
	got, err := v.Validate(context.Background(), parsing.FormCandidate{HTML: "<form></form>"}, "")
	require.Error(t, err)
	require.Equal(t, parsing.JudgmentDecline, got)
}

func TestValidateUnparseableDeclines(t *testing.T) {
	v := newTestValidator(&fakeChat{content: "maybe"})
	got, err := v.Validate(context.Background(), parsing.FormCandidate{HTML: "<form></form>"}, "")
	require.Error(t, err)
	require.Equal(t, parsing.JudgmentDecline, got)
}

func TestValidateTruncatesLargeForms(t *testing.T) {
	chat := &fakeChat{content: "1"}
	v := newTestValidator(chat)

	huge := strings.Repeat("x", 5000)
	_, err := v.Validate(context.Background(), parsing.FormCandidate{HTML: huge}, "ctx")
	require.NoError(t, err)

	user := chat.lastReq.Messages[1].Content
	require.Less(t, len(user), 3000)
	require.Contains(t, user, "(truncated)")
}

func TestValidateRequestShape(t *testing.T) {
	chat := &fakeChat{content: "1"}
	v := newTestValidator(chat)

	_, err := v.Validate(context.Background(), parsing.FormCandidate{HTML: "<form></form>", Context: "near the form"}, "")
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", chat.lastReq.Model)
	require.Equal(t, 5, chat.lastReq.MaxTokens)
	require.Len(t, chat.lastReq.Messages, 2)
	require.Contains(t, chat.lastReq.Messages[1].Content, "near the form")
}

func TestValidateCanceledContextDeclines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := newTestValidator(&fakeChat{content: "1"})
	v.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	// First token is available immediately, drain it so Wait blocks.
	require.True(t, v.limiter.Allow())

	got, err := v.Validate(ctx, parsing.FormCandidate{HTML: "<form></form>"}, "")
	require.Error(t, err)
	require.Equal(t, parsing.JudgmentDecline, got)
}
