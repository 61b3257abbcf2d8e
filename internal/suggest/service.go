// Package suggest drafts new journal prompts with an LLM for premium
// journals. Suggestions are returned to the caller and never stored.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/keepswell/keepswell-api/internal/guardrails"
	"github.com/keepswell/keepswell-api/internal/llm"
	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/template"
)

const (
	maxCount    = 10
	maxTextLen  = 500
	sampleLimit = 15
)

var ErrBadReply = errors.New("unusable suggestion reply")

var screen = guardrails.DefaultPipeline(maxTextLen)

type ConfigResolver interface {
	ResolveConfig(ctx context.Context, id uuid.UUID) (*template.ResolvedConfig, error)
}

type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

type Suggestion struct {
	Text     string          `json:"text"`
	Category models.Category `json:"category"`
}

type Result struct {
	JournalID   uuid.UUID    `json:"journal_id"`
	Provider    string       `json:"provider"`
	Model       string       `json:"model"`
	Suggestions []Suggestion `json:"suggestions"`
	CostUSD     float64      `json:"cost_usd"`
}

type Service struct {
	configs ConfigResolver
	llm     Chatter
}

func NewService(configs ConfigResolver, chatter Chatter) *Service {
	return &Service{configs: configs, llm: chatter}
}

// Suggest asks for count new prompts in the journal's tone. A count of zero
// uses the template's suggestion count.
func (s *Service) Suggest(ctx context.Context, journalID uuid.UUID, count int) (*Result, error) {
	rc, err := s.configs.ResolveConfig(ctx, journalID)
	if err != nil {
		return nil, err
	}
	if rc.AIConfig == nil || !rc.AIConfig.Enabled {
		return nil, &template.PremiumRequiredError{Type: rc.TemplateType, Feature: "AI prompt suggestions"}
	}

	if count == 0 {
		count = rc.AIConfig.SuggestionCount
	}
	if count < 1 || count > maxCount {
		return nil, &template.InvalidConfigValueError{
			Field:  "count",
			Value:  count,
			Reason: fmt.Sprintf("must be between 1 and %d", maxCount),
		}
	}

	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		Provider:    rc.AIConfig.Provider,
		Model:       rc.AIConfig.Model,
		Messages:    buildMessages(rc, count),
		Temperature: 0.9,
		MaxTokens:   1024,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("request suggestions: %w", err)
	}

	suggestions, err := parseSuggestions(resp.Content, rc.Prompts, count)
	if err != nil {
		slog.Warn("discarding suggestion reply", "journal_id", journalID, "provider", resp.Provider, "error", err)
		return nil, err
	}

	slog.Info("prompt suggestions generated",
		"journal_id", journalID,
		"provider", resp.Provider,
		"model", resp.Model,
		"count", len(suggestions),
		"cost_usd", resp.CostUSD,
		"latency_ms", resp.LatencyMs,
	)

	return &Result{
		JournalID:   journalID,
		Provider:    resp.Provider,
		Model:       resp.Model,
		Suggestions: suggestions,
		CostUSD:     resp.CostUSD,
	}, nil
}

func buildMessages(rc *template.ResolvedConfig, count int) []llm.Message {
	persona := rc.AIConfig.Persona
	if persona == "" {
		persona = "a thoughtful journaling companion"
	}

	var sys strings.Builder
	fmt.Fprintf(&sys, "You are %s writing prompts for a %q shared journal.\n", persona, rc.TemplateName)
	if rc.FramingRules.Tone != "" {
		fmt.Fprintf(&sys, "Keep the tone %s.\n", rc.FramingRules.Tone)
	}
	if noun := rc.FramingRules.ParticipantNoun; noun != "" {
		fmt.Fprintf(&sys, "Prompts are sent to each %s individually.\n", noun)
	}
	sys.WriteString(`Reply as JSON: {"suggestions":[{"text":"...","category":"..."}]}.`)

	var user strings.Builder
	fmt.Fprintf(&user, "Write %d new prompts. Each must be a single question under %d characters.\n", count, maxTextLen)
	fmt.Fprintf(&user, "Allowed categories: %s.\n", strings.Join(categoryNames(), ", "))
	var sample []string
	for _, p := range rc.Prompts {
		if len(sample) == sampleLimit {
			break
		}
		// Custom prompt text is user input; keep flagged text out of the model's context.
		if screen.Check(p.Text).Allowed {
			sample = append(sample, p.Text)
		}
	}
	if len(sample) > 0 {
		user.WriteString("Do not repeat these existing prompts:\n")
		for _, text := range sample {
			fmt.Fprintf(&user, "- %s\n", text)
		}
	}

	return []llm.Message{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: user.String()},
	}
}

// parseSuggestions keeps well-formed, novel suggestions up to limit.
func parseSuggestions(content string, existing []models.Prompt, limit int) ([]Suggestion, error) {
	content = stripFence(content)
	if !gjson.Valid(content) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrBadReply)
	}
	items := gjson.Get(content, "suggestions")
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: missing suggestions array", ErrBadReply)
	}

	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[normalize(p.Text)] = true
	}

	var out []Suggestion
	items.ForEach(func(_, item gjson.Result) bool {
		text := strings.TrimSpace(item.Get("text").String())
		if text == "" && item.Type == gjson.String {
			text = strings.TrimSpace(item.String())
		}
		if text == "" || seen[normalize(text)] || !screen.Check(text).Allowed {
			return true
		}
		seen[normalize(text)] = true

		cat := models.Category(strings.ToLower(item.Get("category").String()))
		if !cat.Valid() {
			cat = models.CategoryReflection
		}
		out = append(out, Suggestion{Text: text, Category: cat})
		return len(out) < limit
	})

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no usable suggestions", ErrBadReply)
	}
	return out, nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func categoryNames() []string {
	names := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		names = append(names, string(c))
	}
	return names
}
