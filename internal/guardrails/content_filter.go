package guardrails

import (
	"strings"
)

// ContentFilter blocks text matching keyword lists per category.
type ContentFilter struct {
	blockedCategories map[string][]string
}

func NewContentFilter() *ContentFilter {
	return &ContentFilter{
		blockedCategories: map[string][]string{
			"violence": {
				"how to make a bomb", "how to make explosives",
				"how to harm", "how to kill",
			},
			"self_harm": {
				"hurt yourself", "kill yourself", "end your life",
			},
			"illegal": {
				"how to steal", "how to counterfeit", "how to forge",
			},
		},
	}
}

func (f *ContentFilter) Name() string { return "content_filter" }

func (f *ContentFilter) Check(text string) Result {
	lower := strings.ToLower(text)
	for category, patterns := range f.blockedCategories {
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				return Result{
					Reason: "content policy violation: " + category,
					Flags:  []string{"blocked_" + category},
				}
			}
		}
	}
	return Result{Allowed: true}
}
