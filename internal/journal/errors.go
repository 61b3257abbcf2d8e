package journal

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/keepswell/keepswell-api/internal/models"
)

var (
	ErrJournalNotFound  = errors.New("journal not found")
	ErrPromptNotFound   = errors.New("prompt not found")
	ErrSendNotFound     = errors.New("send record not found")
	ErrForbidden        = errors.New("not allowed to access this journal")
	ErrSystemPrompt     = errors.New("system prompts are read-only")
	ErrAlreadyResponded = errors.New("send already marked as responded")
	ErrJournalNotActive = errors.New("journal is not active")
	ErrNotDue           = errors.New("journal is not due for a prompt")
)

// OrderMismatchError means a reorder request was built from stale state:
// it does not list exactly the journal's visible prompts.
type OrderMismatchError struct {
	Missing    []string `json:"missing,omitempty"`
	Foreign    []string `json:"foreign,omitempty"`
	Duplicates []string `json:"duplicates,omitempty"`
}

func (e *OrderMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Foreign) > 0 {
		parts = append(parts, "unknown "+strings.Join(e.Foreign, ", "))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, "repeated "+strings.Join(e.Duplicates, ", "))
	}
	return fmt.Sprintf("prompt order does not match journal prompts: %s", strings.Join(parts, "; "))
}

// ValidatePermutation checks that ids lists every visible prompt exactly once
// and nothing else.
func ValidatePermutation(visible []models.Prompt, ids []string) error {
	want := make(map[string]bool, len(visible))
	for _, p := range visible {
		want[p.ID] = true
	}

	seen := make(map[string]bool, len(ids))
	mm := &OrderMismatchError{}
	for _, id := range ids {
		switch {
		case !want[id]:
			mm.Foreign = append(mm.Foreign, id)
		case seen[id]:
			mm.Duplicates = append(mm.Duplicates, id)
		}
		seen[id] = true
	}
	for _, p := range visible {
		if !seen[p.ID] {
			mm.Missing = append(mm.Missing, p.ID)
		}
	}

	if len(mm.Missing) == 0 && len(mm.Foreign) == 0 && len(mm.Duplicates) == 0 {
		return nil
	}
	sort.Strings(mm.Missing)
	sort.Strings(mm.Foreign)
	sort.Strings(mm.Duplicates)
	return mm
}
