// Package guardrails screens prompt text before it is stored or sent to
// participants.
package guardrails

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Result holds the outcome of a screening check.
type Result struct {
	Allowed bool     `json:"allowed"`
	Flags   []string `json:"flags,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Guardrail is a single check over prompt text.
type Guardrail interface {
	Check(text string) Result
	Name() string
}

// Pipeline chains guardrails; the first block wins the reason.
type Pipeline struct {
	guards []Guardrail
}

func NewPipeline(guards ...Guardrail) *Pipeline {
	return &Pipeline{guards: guards}
}

func (p *Pipeline) Add(g Guardrail) {
	p.guards = append(p.guards, g)
}

func (p *Pipeline) Check(text string) Result {
	combined := Result{Allowed: true}
	for _, g := range p.guards {
		r := g.Check(text)
		combined.Flags = append(combined.Flags, r.Flags...)
		if !r.Allowed && combined.Allowed {
			combined.Allowed = false
			combined.Reason = fmt.Sprintf("blocked by %s: %s", g.Name(), r.Reason)
		}
	}
	return combined
}

// DefaultPipeline is the screen applied to custom and suggested prompts.
func DefaultPipeline(maxLen int) *Pipeline {
	return NewPipeline(
		NewLengthGuard(maxLen),
		NewContentFilter(),
		NewInjectionDetector(),
		NewSecretDetector(),
	)
}

type LengthGuard struct {
	maxLength int
}

func NewLengthGuard(maxLen int) *LengthGuard {
	return &LengthGuard{maxLength: maxLen}
}

func (g *LengthGuard) Name() string { return "length" }

func (g *LengthGuard) Check(text string) Result {
	if utf8.RuneCountInString(text) > g.maxLength {
		return Result{
			Reason: fmt.Sprintf("exceeds %d characters", g.maxLength),
			Flags:  []string{"too_long"},
		}
	}
	return Result{Allowed: true}
}

// SecretDetector blocks prompts that ask participants for credentials or
// identity numbers.
type SecretDetector struct {
	patterns map[string][]string
}

func NewSecretDetector() *SecretDetector {
	return &SecretDetector{patterns: map[string][]string{
		"ssn":         {"social security number", "ssn"},
		"credit_card": {"credit card number", "card number", "cvv"},
		"password":    {"password", "passcode", "pin number"},
		"bank":        {"bank account number", "routing number"},
	}}
}

func (d *SecretDetector) Name() string { return "secret_detector" }

func (d *SecretDetector) Check(text string) Result {
	words := " " + normalize(text) + " "
	var flags []string
	for flag, patterns := range d.patterns {
		for _, p := range patterns {
			if strings.Contains(words, " "+p+" ") {
				flags = append(flags, flag)
				break
			}
		}
	}
	if len(flags) > 0 {
		return Result{Reason: "asks for sensitive personal data", Flags: flags}
	}
	return Result{Allowed: true}
}

// normalize lowercases text and turns punctuation into spaces so patterns
// match on word boundaries.
func normalize(text string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	}), " ")
}
