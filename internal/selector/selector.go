package selector

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/models"
)

// NoEligiblePromptError means filtering left nothing to send. The caller
// decides whether to skip the cycle or widen its filters.
type NoEligiblePromptError struct {
	Reason string
}

func (e *NoEligiblePromptError) Error() string {
	return "no eligible prompt: " + e.Reason
}

type Options struct {
	ParticipantID    *uuid.UUID
	PreferCategory   models.Category
	ExcludePromptIDs []string
	// Ordered means the pool is in an owner-defined order and the first
	// eligible prompt is taken instead of a weighted draw.
	Ordered bool
	// ParticipantCount is how many distinct prompts the caller needs from
	// the current rotation. Zero means one.
	ParticipantCount int
}

type Result struct {
	Prompt          models.Prompt `json:"prompt"`
	SelectionReason string        `json:"selection_reason"`
	Confidence      float64       `json:"confidence"`
	Candidates      int           `json:"candidates"`
}

// Selector picks the next prompt to send. It does not record sends, so it
// is safe to call concurrently.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Selector drawing from src. A nil src seeds from the clock.
func New(src rand.Source) *Selector {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}
	return &Selector{rng: rand.New(src)}
}

// SelectNext picks the next prompt from pool given the journal's send
// history.
func (s *Selector) SelectNext(pool []models.Prompt, history []models.PromptSendRecord, opts Options) (*Result, error) {
	filtered := filterPool(pool, opts.ExcludePromptIDs)
	if len(filtered) == 0 {
		return nil, &NoEligiblePromptError{Reason: "prompt pool is empty after filtering"}
	}
	if len(filtered) == 1 {
		return &Result{Prompt: filtered[0], SelectionReason: "only eligible prompt", Confidence: 1, Candidates: 1}, nil
	}

	if len(history) == 0 {
		if p, ok := starter(filtered, opts.PreferCategory); ok {
			return &Result{
				Prompt:          p,
				SelectionReason: "starter prompt for new journal",
				Confidence:      1,
				Candidates:      len(filtered),
			}, nil
		}
	}

	rot := newRotation(filtered, forParticipant(history, opts.ParticipantID))

	eligible := make([]models.Prompt, 0, len(filtered))
	for _, p := range filtered {
		if !rot.recent[p.ID] {
			eligible = append(eligible, p)
		}
	}

	required := max(opts.ParticipantCount, 1)
	if len(eligible) < required {
		p := rot.leastRecentlySent(filtered)
		reason := "rotation exhausted: reusing least recently sent prompt"
		if len(eligible) > 0 {
			reason = fmt.Sprintf("only %d prompts outside the rotation window for %d participants: reusing least recently sent prompt", len(eligible), required)
		}
		return &Result{
			Prompt:          p,
			SelectionReason: reason,
			Confidence:      1 / float64(len(filtered)),
			Candidates:      len(filtered),
		}, nil
	}

	candidates := eligible
	scope := fmt.Sprintf("%d candidates", len(eligible))
	if opts.PreferCategory != "" {
		var inCat []models.Prompt
		for _, p := range eligible {
			if p.Category == opts.PreferCategory {
				inCat = append(inCat, p)
			}
		}
		if len(inCat) > 0 {
			candidates = inCat
			scope = "category " + string(opts.PreferCategory)
		}
	}
	repeats := len(rot.recent)

	if len(candidates) == 1 {
		return &Result{
			Prompt:          candidates[0],
			SelectionReason: fmt.Sprintf("only prompt left in %s avoiding %d recent repeats", scope, repeats),
			Confidence:      1,
			Candidates:      1,
		}, nil
	}

	if opts.Ordered {
		return &Result{
			Prompt:          candidates[0],
			SelectionReason: fmt.Sprintf("next prompt in custom order from %s avoiding %d recent repeats", scope, repeats),
			Confidence:      1,
			Candidates:      len(candidates),
		}, nil
	}

	weights := rot.weights(candidates)
	idx, p := s.draw(weights)
	return &Result{
		Prompt:          candidates[idx],
		SelectionReason: fmt.Sprintf("weighted pick from %s avoiding %d recent repeats", scope, repeats),
		Confidence:      p,
		Candidates:      len(candidates),
	}, nil
}

// draw returns the chosen index and its probability.
func (s *Selector) draw(weights []float64) (int, float64) {
	var total float64
	for _, w := range weights {
		total += w
	}

	s.mu.Lock()
	r := s.rng.Float64() * total
	s.mu.Unlock()

	for i, w := range weights {
		if r < w {
			return i, w / total
		}
		r -= w
	}
	last := len(weights) - 1
	return last, weights[last] / total
}

func filterPool(pool []models.Prompt, exclude []string) []models.Prompt {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	out := make([]models.Prompt, 0, len(pool))
	seen := make(map[string]bool, len(pool))
	for _, p := range pool {
		if skip[p.ID] || p.Tombstoned() || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

// forParticipant keeps the sends that reached participant: those addressed
// to them and those addressed to everyone.
func forParticipant(history []models.PromptSendRecord, participant *uuid.UUID) []models.PromptSendRecord {
	if participant == nil {
		return history
	}
	out := make([]models.PromptSendRecord, 0, len(history))
	for _, h := range history {
		if h.ParticipantID == nil || *h.ParticipantID == *participant {
			out = append(out, h)
		}
	}
	return out
}

// starter returns the first starter prompt, preferring one in category.
func starter(pool []models.Prompt, category models.Category) (models.Prompt, bool) {
	var first *models.Prompt
	for i, p := range pool {
		if !p.IsStarter {
			continue
		}
		if category == "" || p.Category == category {
			return p, true
		}
		if first == nil {
			first = &pool[i]
		}
	}
	if first == nil {
		return models.Prompt{}, false
	}
	return *first, true
}

// rotation holds the prompts inside the rotation window: the distinct
// prompts among the last len(pool) sends. A prompt in the window is not
// sent again until it slides out.
type rotation struct {
	recent   map[string]bool
	lastSent map[string]time.Time
}

func newRotation(pool []models.Prompt, history []models.PromptSendRecord) *rotation {
	inPool := make(map[string]bool, len(pool))
	for _, p := range pool {
		inPool[p.ID] = true
	}

	sorted := make([]models.PromptSendRecord, 0, len(history))
	for _, h := range history {
		if inPool[h.PromptID] {
			sorted = append(sorted, h)
		}
	}
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].SentAt.Before(sorted[b].SentAt) })

	r := &rotation{recent: make(map[string]bool), lastSent: make(map[string]time.Time)}
	for _, h := range sorted {
		r.lastSent[h.PromptID] = h.SentAt
	}
	for _, h := range sorted[max(len(sorted)-len(pool), 0):] {
		r.recent[h.PromptID] = true
	}
	return r
}

// leastRecentlySent prefers never-sent prompts, then the oldest send. Ties
// keep pool order.
func (r *rotation) leastRecentlySent(pool []models.Prompt) models.Prompt {
	best := pool[0]
	bestAt, bestSent := r.lastSent[best.ID]
	for _, p := range pool[1:] {
		at, sent := r.lastSent[p.ID]
		switch {
		case !bestSent:
			return best
		case !sent:
			return p
		case at.Before(bestAt):
			best, bestAt = p, at
		}
	}
	return best
}

// weights scales each prompt's weight by how long ago it was last sent:
// never-sent prompts keep their full weight, previously sent ones get 0.5
// (most recent) to 0.9 (oldest).
func (r *rotation) weights(candidates []models.Prompt) []float64 {
	var sent []string
	for _, p := range candidates {
		if _, ok := r.lastSent[p.ID]; ok {
			sent = append(sent, p.ID)
		}
	}
	sort.SliceStable(sent, func(a, b int) bool { return r.lastSent[sent[a]].Before(r.lastSent[sent[b]]) })

	factor := make(map[string]float64, len(sent))
	for rank, id := range sent {
		if len(sent) == 1 {
			factor[id] = 0.9
			continue
		}
		factor[id] = 0.9 - 0.4*float64(rank)/float64(len(sent)-1)
	}

	out := make([]float64, len(candidates))
	for i, p := range candidates {
		f, ok := factor[p.ID]
		if !ok {
			f = 1
		}
		out[i] = p.EffectiveWeight() * f
	}
	return out
}
