package llm

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	name  string
	fails int
	calls int
	model string
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) ChatCompletion(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.calls++
	p.model = req.Model
	if p.calls <= p.fails {
		return nil, errors.New("unavailable")
	}
	return &ChatResponse{Provider: p.name, Model: req.Model, Content: "ok"}, nil
}

func TestGatewayRetryAndFallback(t *testing.T) {
	tests := []struct {
		name          string
		primaryFails  int
		wantProvider  string
		wantModel     string
		wantPrimaries int
	}{
		{"first try", 0, "anthropic", "claude-sonnet-4-20250514", 1},
		{"retried", 1, "anthropic", "claude-sonnet-4-20250514", 2},
		{"fallback", 10, "openai", "gpt-4o-mini", 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			primary := &stubProvider{name: "anthropic", fails: tc.primaryFails}
			fallback := &stubProvider{name: "openai"}
			g := NewGatewayWith("anthropic", "openai", 1, primary, fallback)
			g.retryDelay = 0

			resp, err := g.Chat(context.Background(), ChatRequest{Model: "claude-sonnet-4-20250514"})
			if err != nil {
				t.Fatalf("Chat: %v", err)
			}
			if resp.Provider != tc.wantProvider || resp.Model != tc.wantModel {
				t.Errorf("got %s/%s, want %s/%s", resp.Provider, resp.Model, tc.wantProvider, tc.wantModel)
			}
			if primary.calls != tc.wantPrimaries {
				t.Errorf("primary calls: got %d, want %d", primary.calls, tc.wantPrimaries)
			}
		})
	}
}

func TestGatewayUnknownProvider(t *testing.T) {
	g := NewGatewayWith("anthropic", "", 0)
	if g.Configured() {
		t.Fatal("empty gateway reports configured")
	}
	if _, err := g.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}
