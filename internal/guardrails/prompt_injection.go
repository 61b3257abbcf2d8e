package guardrails

import (
	"strings"
)

// InjectionDetector flags text that tries to steer the model that reads
// it. Custom prompts are quoted back to the suggestion model, so they are
// screened too.
type InjectionDetector struct {
	threshold float64
}

func NewInjectionDetector() *InjectionDetector {
	return &InjectionDetector{threshold: 0.7}
}

func (d *InjectionDetector) Name() string { return "prompt_injection" }

var injectionPatterns = []struct {
	pattern string
	weight  float64
	flag    string
}{
	{"ignore previous instructions", 0.9, "override_attempt"},
	{"ignore all previous", 0.9, "override_attempt"},
	{"disregard your instructions", 0.9, "override_attempt"},
	{"forget your instructions", 0.85, "override_attempt"},
	{"you are now", 0.7, "role_hijack"},
	{"pretend you are", 0.6, "role_hijack"},
	{"system prompt:", 0.8, "system_leak"},
	{"reveal your system", 0.8, "system_leak"},
	{"show me your prompt", 0.8, "system_leak"},
	{"jailbreak", 0.9, "jailbreak"},
	{"do anything now", 0.85, "jailbreak"},
	{"</system>", 0.8, "tag_injection"},
	{"<system>", 0.8, "tag_injection"},
	{"[system]", 0.7, "tag_injection"},
	{"```system", 0.7, "format_injection"},
}

func (d *InjectionDetector) Check(text string) Result {
	lower := strings.ToLower(text)
	var flags []string
	score := 0.0
	for _, p := range injectionPatterns {
		if strings.Contains(lower, p.pattern) {
			score = max(score, p.weight)
			flags = append(flags, p.flag)
		}
	}

	if score >= d.threshold {
		return Result{Reason: "potential prompt injection", Flags: flags}
	}
	return Result{Allowed: true, Flags: flags}
}
