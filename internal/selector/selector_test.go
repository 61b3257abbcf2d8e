package selector

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/models"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seeded(seed uint64) *Selector {
	return New(rand.NewPCG(seed, seed+1))
}

func send(id string, n int) models.PromptSendRecord {
	return models.PromptSendRecord{ID: uuid.New(), PromptID: id, SentAt: epoch.Add(time.Duration(n) * time.Hour)}
}

func examplePool() []models.Prompt {
	return []models.Prompt{
		{ID: "A", Weight: 1, IsStarter: true, Category: models.CategoryMemories},
		{ID: "B", Weight: 2, Category: models.CategoryStories},
		{ID: "C", Weight: 1, Category: models.CategoryGratitude},
	}
}

func TestExampleScenario(t *testing.T) {
	s := seeded(1)

	res, err := s.SelectNext(examplePool(), nil, Options{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID != "A" {
		t.Fatalf("cold start: got %s, want A", res.Prompt.ID)
	}
	if !strings.Contains(res.SelectionReason, "starter") {
		t.Errorf("reason %q should mention starter", res.SelectionReason)
	}
	if res.Confidence != 1 {
		t.Errorf("confidence: got %v, want 1", res.Confidence)
	}

	history := []models.PromptSendRecord{send("A", 0)}
	for i := 0; i < 200; i++ {
		res, err := s.SelectNext(examplePool(), history, Options{})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if res.Prompt.ID == "A" {
			t.Fatal("A was repeated inside its rotation window")
		}
	}
}

func TestNoRepeatUntilPoolExhausted(t *testing.T) {
	pool := []models.Prompt{
		{ID: "p1", IsStarter: true}, {ID: "p2", Weight: 5}, {ID: "p3"},
		{ID: "p4", Weight: 0.2}, {ID: "p5", IsStarter: true}, {ID: "p6", Weight: 3},
	}
	for seed := uint64(0); seed < 25; seed++ {
		s := seeded(seed)
		var history []models.PromptSendRecord
		seen := map[string]bool{}
		for i := 0; i < len(pool); i++ {
			res, err := s.SelectNext(pool, history, Options{})
			if err != nil {
				t.Fatalf("seed %d call %d: %v", seed, i, err)
			}
			if seen[res.Prompt.ID] {
				t.Fatalf("seed %d: %s returned twice within one rotation", seed, res.Prompt.ID)
			}
			seen[res.Prompt.ID] = true
			history = append(history, send(res.Prompt.ID, i))
		}

		// the whole pool is in the window, so the oldest send comes back
		res, err := s.SelectNext(pool, history, Options{})
		if err != nil {
			t.Fatalf("seed %d next rotation: %v", seed, err)
		}
		if res.Prompt.ID != history[0].PromptID {
			t.Fatalf("seed %d: got %s, want least recently sent %s", seed, res.Prompt.ID, history[0].PromptID)
		}
	}
}

func TestColdStartAlwaysStarter(t *testing.T) {
	pool := []models.Prompt{{ID: "x", Weight: 10}, {ID: "s1", IsStarter: true}, {ID: "s2", IsStarter: true}}
	for seed := uint64(0); seed < 20; seed++ {
		res, err := seeded(seed).SelectNext(pool, nil, Options{PreferCategory: models.CategoryDreams})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if !res.Prompt.IsStarter || res.Confidence != 1 {
			t.Fatalf("seed %d: got %s (confidence %v), want a starter with confidence 1", seed, res.Prompt.ID, res.Confidence)
		}
	}
}

func TestColdStartPrefersCategoryStarter(t *testing.T) {
	pool := []models.Prompt{
		{ID: "s1", IsStarter: true, Category: models.CategoryMemories},
		{ID: "s2", IsStarter: true, Category: models.CategoryGratitude},
		{ID: "g", Category: models.CategoryGratitude, Weight: 10},
	}
	res, err := seeded(1).SelectNext(pool, nil, Options{PreferCategory: models.CategoryGratitude})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID != "s2" {
		t.Fatalf("got %s, want the gratitude starter s2", res.Prompt.ID)
	}

	res, err = seeded(1).SelectNext(pool, nil, Options{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID != "s1" {
		t.Fatalf("no preference: got %s, want first starter s1", res.Prompt.ID)
	}
}

func TestEmptyPool(t *testing.T) {
	s := seeded(1)
	var nep *NoEligiblePromptError

	_, err := s.SelectNext(nil, nil, Options{})
	if !errors.As(err, &nep) {
		t.Fatalf("empty pool: expected NoEligiblePromptError, got %v", err)
	}

	gone := epoch
	pool := []models.Prompt{{ID: "a"}, {ID: "b", DeletedAt: &gone}}
	_, err = s.SelectNext(pool, nil, Options{ExcludePromptIDs: []string{"a"}})
	if !errors.As(err, &nep) {
		t.Fatalf("all filtered: expected NoEligiblePromptError, got %v", err)
	}
}

func TestSingleCandidate(t *testing.T) {
	pool := []models.Prompt{{ID: "only", Weight: 0.01}, {ID: "skip"}}
	history := []models.PromptSendRecord{send("only", 0), send("only", 1)}
	res, err := seeded(3).SelectNext(pool, history, Options{ExcludePromptIDs: []string{"skip"}})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID != "only" || res.Confidence != 1 {
		t.Fatalf("got %s with confidence %v", res.Prompt.ID, res.Confidence)
	}
}

func TestPreferCategory(t *testing.T) {
	pool := []models.Prompt{
		{ID: "m1", Category: models.CategoryMemories},
		{ID: "g1", Category: models.CategoryGratitude},
		{ID: "g2", Category: models.CategoryGratitude},
	}
	history := []models.PromptSendRecord{send("m1", 0)}

	for seed := uint64(0); seed < 10; seed++ {
		res, err := seeded(seed).SelectNext(pool, history, Options{PreferCategory: models.CategoryGratitude})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if res.Prompt.Category != models.CategoryGratitude {
			t.Fatalf("got %s, want a gratitude prompt", res.Prompt.ID)
		}
		if !strings.Contains(res.SelectionReason, "category gratitude") {
			t.Errorf("reason %q should name the category", res.SelectionReason)
		}
	}

	// the only memories prompt was just sent, so the preference is dropped
	res, err := seeded(1).SelectNext(pool, history, Options{PreferCategory: models.CategoryMemories})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID == "m1" {
		t.Fatal("category preference overrode the rotation window")
	}
}

func TestParticipantHistory(t *testing.T) {
	ana, ben := uuid.New(), uuid.New()
	pool := []models.Prompt{{ID: "a"}, {ID: "b"}}
	history := []models.PromptSendRecord{
		{PromptID: "a", ParticipantID: &ben, SentAt: epoch},
	}

	// ben already had "a"; ana did not
	res, err := seeded(1).SelectNext(pool, history, Options{ParticipantID: &ben})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID != "b" {
		t.Fatalf("ben: got %s, want b", res.Prompt.ID)
	}

	history = append(history, models.PromptSendRecord{PromptID: "b", SentAt: epoch.Add(time.Hour)})
	res, err = seeded(1).SelectNext(pool, history, Options{ParticipantID: &ana})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID != "a" {
		t.Fatalf("ana: got %s, want a (b went to everyone)", res.Prompt.ID)
	}
}

func TestFallbackReusesLeastRecentlySent(t *testing.T) {
	pool := []models.Prompt{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	history := []models.PromptSendRecord{send("b", 0), send("a", 1)}

	res, err := seeded(1).SelectNext(pool, history, Options{ParticipantCount: 3})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID != "c" {
		t.Fatalf("got %s, want never-sent c", res.Prompt.ID)
	}
	if !strings.Contains(res.SelectionReason, "least recently sent") {
		t.Errorf("reason %q should describe the fallback", res.SelectionReason)
	}
	if !strings.Contains(res.SelectionReason, "only 1 prompts outside the rotation window for 3 participants") || strings.Contains(res.SelectionReason, "exhausted") {
		t.Errorf("reason %q should count the prompts still outside the window", res.SelectionReason)
	}

	full := append(history, send("c", 2))
	res, err = seeded(1).SelectNext(pool, full, Options{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID != "b" || !strings.Contains(res.SelectionReason, "rotation exhausted") {
		t.Fatalf("got %s (%q), want b with rotation exhausted", res.Prompt.ID, res.SelectionReason)
	}

	r := newRotation(pool, []models.PromptSendRecord{send("c", 0), send("b", 1), send("a", 2)})
	if got := r.leastRecentlySent(pool); got.ID != "c" {
		t.Fatalf("least recently sent: got %s, want c", got.ID)
	}
}

func TestOrderedSelection(t *testing.T) {
	pool := []models.Prompt{{ID: "z", Weight: 9}, {ID: "y"}, {ID: "x"}}
	history := []models.PromptSendRecord{send("z", 0)}

	res, err := seeded(7).SelectNext(pool, history, Options{Ordered: true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if res.Prompt.ID != "y" {
		t.Fatalf("got %s, want y", res.Prompt.ID)
	}
	if !strings.Contains(res.SelectionReason, "custom order") {
		t.Errorf("reason %q", res.SelectionReason)
	}
}

func TestWeightedDrawFavorsHeavierPrompts(t *testing.T) {
	pool := []models.Prompt{{ID: "seed"}, {ID: "heavy", Weight: 3}, {ID: "light", Weight: 1}}
	history := []models.PromptSendRecord{send("seed", 0)}
	s := seeded(42)

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		res, err := s.SelectNext(pool, history, Options{})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		counts[res.Prompt.ID]++
		if res.Confidence <= 0 || res.Confidence >= 1 {
			t.Fatalf("confidence %v outside (0,1) for a two-way draw", res.Confidence)
		}
	}
	if counts["heavy"] < 2*counts["light"] {
		t.Errorf("weights not respected: %v", counts)
	}
}

func TestRotationWindowSlides(t *testing.T) {
	pool := []models.Prompt{{ID: "a"}, {ID: "b"}}
	r := newRotation(pool, []models.PromptSendRecord{send("a", 0), send("b", 1), send("a", 2), send("x", 3)})
	if !r.recent["a"] || !r.recent["b"] || len(r.recent) != 2 {
		t.Fatalf("window after a,b,a should hold a and b: %v", r.recent)
	}
	if got := r.leastRecentlySent(pool); got.ID != "b" {
		t.Fatalf("least recently sent: got %s, want b", got.ID)
	}
}

func TestLastSentNeverRepeatedAcrossCycles(t *testing.T) {
	pool := []models.Prompt{{ID: "A", Weight: 1}, {ID: "B", Weight: 1}, {ID: "C", Weight: 1}}
	history := []models.PromptSendRecord{send("A", 0), send("B", 1), send("C", 2)}

	for seed := uint64(0); seed < 200; seed++ {
		res, err := seeded(seed).SelectNext(pool, history, Options{})
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if res.Prompt.ID == "C" {
			t.Fatalf("seed %d: C was sent one send ago and got picked again", seed)
		}
	}
}

func TestRoundRobinAfterFirstCycle(t *testing.T) {
	pool := []models.Prompt{{ID: "p1"}, {ID: "p2", Weight: 4}, {ID: "p3"}, {ID: "p4", Weight: 0.5}}
	for seed := uint64(0); seed < 20; seed++ {
		s := seeded(seed)
		var history []models.PromptSendRecord
		for i := 0; i < 4*len(pool); i++ {
			res, err := s.SelectNext(pool, history, Options{})
			if err != nil {
				t.Fatalf("seed %d call %d: %v", seed, i, err)
			}
			if i >= len(pool) {
				want := history[i-len(pool)].PromptID
				if res.Prompt.ID != want {
					t.Fatalf("seed %d call %d: got %s, want %s from one rotation ago", seed, i, res.Prompt.ID, want)
				}
			}
			if n := len(history); n > 0 && history[n-1].PromptID == res.Prompt.ID {
				t.Fatalf("seed %d call %d: %s sent twice in a row", seed, i, res.Prompt.ID)
			}
			history = append(history, send(res.Prompt.ID, i))
		}
	}
}
