package selector

import (
	"sort"
	"time"

	"github.com/keepswell/keepswell-api/internal/models"
)

// RetiredCategory groups sends whose prompt is no longer in the pool.
const RetiredCategory models.Category = "retired"

type PromptStats struct {
	PromptID     string          `json:"prompt_id"`
	Category     models.Category `json:"category"`
	Sends        int             `json:"sends"`
	Responses    int             `json:"responses"`
	ResponseRate float64         `json:"response_rate"`
	LastSentAt   *time.Time      `json:"last_sent_at,omitempty"`
}

type CategoryStats struct {
	Sends        int     `json:"sends"`
	Responses    int     `json:"responses"`
	ResponseRate float64 `json:"response_rate"`
}

type Summary struct {
	TotalSends     int                                `json:"total_sends"`
	TotalResponses int                                `json:"total_responses"`
	ResponseRate   float64                            `json:"response_rate"`
	NeverSent      []string                           `json:"never_sent"`
	ByPrompt       []PromptStats                      `json:"by_prompt"`
	ByCategory     map[models.Category]*CategoryStats `json:"by_category"`
}

// Stats summarizes send and response counts for a journal.
func Stats(pool []models.Prompt, history []models.PromptSendRecord) Summary {
	cats := make(map[string]models.Category, len(pool))
	for _, p := range pool {
		cats[p.ID] = p.Category
	}

	byPrompt := make(map[string]*PromptStats)
	sum := Summary{ByCategory: make(map[models.Category]*CategoryStats), NeverSent: []string{}}
	for _, h := range history {
		ps, ok := byPrompt[h.PromptID]
		if !ok {
			cat, known := cats[h.PromptID]
			if !known {
				cat = RetiredCategory
			}
			ps = &PromptStats{PromptID: h.PromptID, Category: cat}
			byPrompt[h.PromptID] = ps
		}
		ps.Sends++
		if ps.LastSentAt == nil || h.SentAt.After(*ps.LastSentAt) {
			at := h.SentAt
			ps.LastSentAt = &at
		}

		cs := sum.ByCategory[ps.Category]
		if cs == nil {
			cs = &CategoryStats{}
			sum.ByCategory[ps.Category] = cs
		}
		cs.Sends++
		sum.TotalSends++
		if h.RespondedAt != nil {
			ps.Responses++
			cs.Responses++
			sum.TotalResponses++
		}
	}

	for _, ps := range byPrompt {
		ps.ResponseRate = rate(ps.Responses, ps.Sends)
		sum.ByPrompt = append(sum.ByPrompt, *ps)
	}
	sort.Slice(sum.ByPrompt, func(a, b int) bool {
		if sum.ByPrompt[a].Sends != sum.ByPrompt[b].Sends {
			return sum.ByPrompt[a].Sends > sum.ByPrompt[b].Sends
		}
		return sum.ByPrompt[a].PromptID < sum.ByPrompt[b].PromptID
	})
	for _, cs := range sum.ByCategory {
		cs.ResponseRate = rate(cs.Responses, cs.Sends)
	}
	for _, p := range pool {
		if _, ok := byPrompt[p.ID]; !ok {
			sum.NeverSent = append(sum.NeverSent, p.ID)
		}
	}
	sum.ResponseRate = rate(sum.TotalResponses, sum.TotalSends)
	return sum
}

func rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
