package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subtrack/subtrack/internal/domain"
)

type stubLLM struct {
	reply  string
	err    error
	prompt string
}

func (s *stubLLM) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

type blockingLLM struct{}

func (blockingLLM) Complete(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

var today = time.Date(2025, 11, 20, 15, 30, 0, 0, time.UTC)

func newTestExtractor(llm LLM) *Extractor {
	e := New(llm, time.Second, time.UTC, "R$")
	e.now = func() time.Time { return today }
	return e
}

func TestExtractor_Candidate(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		check func(t *testing.T, sub *domain.Subscription)
	}{
		{
			name:  "complete object",
			reply: `{"name":"Netflix","price":29.9,"currency":"BRL","renewalDate":"2025-12-10","category":"streaming","description":"family","billingPeriod":"monthly"}`,
			check: func(t *testing.T, sub *domain.Subscription) {
				assert.Equal(t, "Netflix", sub.Name)
				assert.Equal(t, "29.9", sub.Price.String())
				assert.Equal(t, "R$", sub.Currency)
				assert.Equal(t, time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC), sub.RenewalDate)
				assert.Equal(t, domain.CategoryStreaming, sub.Category)
				assert.Equal(t, "family", sub.Description)
				assert.Equal(t, domain.BillingMonthly, sub.BillingPeriod)
			},
		},
		{
			name:  "price as localized string",
			reply: `{"name":"Spotify","price":"R$ 21,90"}`,
			check: func(t *testing.T, sub *domain.Subscription) {
				assert.Equal(t, "21.9", sub.Price.String())
			},
		},
		{
			name:  "object wrapped in prose",
			reply: "Sure! Here it is:\n```json\n{\"name\":\"Adobe {CC}\",\"price\":\"1.199,00\",\"billingPeriod\":\"anual\",\"currency\":\"usd\"}\n```",
			check: func(t *testing.T, sub *domain.Subscription) {
				assert.Equal(t, "Adobe {CC}", sub.Name)
				assert.Equal(t, "1199", sub.Price.String())
				assert.Equal(t, domain.BillingAnnual, sub.BillingPeriod)
				assert.Equal(t, "US$", sub.Currency)
			},
		},
		{
			name:  "defaults",
			reply: `{"name":"Gym","price":99,"category":"fitness","renewalDate":"soon"}`,
			check: func(t *testing.T, sub *domain.Subscription) {
				assert.Equal(t, domain.BillingMonthly, sub.BillingPeriod)
				assert.Equal(t, domain.CategoryOther, sub.Category)
				assert.Equal(t, "R$", sub.Currency)
				assert.Equal(t, time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC), sub.RenewalDate)
				assert.True(t, sub.IsActive)
			},
		},
		{
			name:  "annual default renewal",
			reply: `{"name":"Domain","price":60,"billingPeriod":"yearly"}`,
			check: func(t *testing.T, sub *domain.Subscription) {
				assert.Equal(t, time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC), sub.RenewalDate)
			},
		},
		{
			name:  "portuguese category",
			reply: `{"name":"Duolingo","price":"15","category":"Educação"}`,
			check: func(t *testing.T, sub *domain.Subscription) {
				assert.Equal(t, domain.CategoryEducation, sub.Category)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := newTestExtractor(&stubLLM{reply: tt.reply}).Extract(context.Background(), "text")
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Empty(t, sub.ID)
			tt.check(t, sub)
		})
	}
}

func TestExtractor_Insufficient(t *testing.T) {
	replies := map[string]string{
		"no name":        `{"name":"","price":10}`,
		"no price":       `{"name":"Netflix"}`,
		"empty price":    `{"name":"Netflix","price":""}`,
		"null price":     `{"name":"Netflix","price":null}`,
		"zero price":     `{"name":"Netflix","price":0}`,
		"negative price": `{"name":"Netflix","price":-5}`,
		"text price":     `{"name":"Netflix","price":"unknown"}`,
		"tiny price":     `{"name":"Netflix","price":0.004}`,
		"prose refusal":  "Sorry, I could not find a subscription in that message.",
		"broken object":  `{"name":"Netflix","price":`,
	}

	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			sub, err := newTestExtractor(&stubLLM{reply: reply}).Extract(context.Background(), "text")
			require.NoError(t, err)
			assert.Nil(t, sub)
		})
	}
}

func TestExtractor_Failures(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		_, err := newTestExtractor(&stubLLM{err: errors.New("401")}).Extract(context.Background(), "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("timeout", func(t *testing.T) {
		e := New(blockingLLM{}, 20*time.Millisecond, time.UTC, "R$")
		_, err := e.Extract(context.Background(), "text")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestExtractor_Prompt(t *testing.T) {
	llm := &stubLLM{reply: `{"name":"Netflix","price":10}`}
	_, err := newTestExtractor(llm).Extract(context.Background(), "Netflix 39,90 todo mês")
	require.NoError(t, err)

	assert.Contains(t, llm.prompt, "Netflix 39,90 todo mês")
	assert.Contains(t, llm.prompt, "Today is 2025-11-20")
	assert.Contains(t, llm.prompt, "streaming")
	assert.Contains(t, llm.prompt, "renewalDate")
}

func TestJSONObjects(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`{"a":1}`, []string{`{"a":1}`}},
		{`x {"a":{"b":2}} y {"c":3}`, []string{`{"a":{"b":2}}`, `{"c":3}`}},
		{`{"a":"}{"}`, []string{`{"a":"}{"}`}},
		{`{"a":"\"}"}`, []string{`{"a":"\"}"}`}},
		{`} stray {"a":1}`, []string{`{"a":1}`}},
		{`{"open":`, nil},
		{`no braces`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, jsonObjects(tt.in))
		})
	}
}
