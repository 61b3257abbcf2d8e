package template

import (
	"sort"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/models"
)

// ResolvedConfig is a template with a journal's overrides applied. It has no
// identity of its own and is recomputed from its sources on every read.
type ResolvedConfig struct {
	JournalID       uuid.UUID              `json:"journal_id"`
	TemplateID      string                 `json:"template_id"`
	TemplateType    models.TemplateType    `json:"template_type"`
	TemplateName    string                 `json:"template_name"`
	IsPremium       bool                   `json:"is_premium"`
	VisualRules     models.VisualRules     `json:"visual_rules"`
	FramingRules    models.FramingRules    `json:"framing_rules"`
	StructuralRules models.StructuralRules `json:"structural_rules"`
	ExportConfig    models.ExportConfig    `json:"export_config"`
	CadenceConfig   models.CadenceConfig   `json:"cadence_config"`
	AIConfig        *models.AIConfig       `json:"ai_config,omitempty"`
	Prompts         []models.Prompt        `json:"prompts"`
	Overrides       []string               `json:"overrides"`
}

// Resolver resolves journals against a catalog.
type Resolver struct {
	catalog *Catalog
}

func NewResolver(c *Catalog) *Resolver {
	return &Resolver{catalog: c}
}

func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve looks up the journal's template and merges it with the journal's
// overrides and custom prompts.
func (r *Resolver) Resolve(j *models.Journal, custom []models.Prompt) (*ResolvedConfig, error) {
	t, err := r.catalog.ByType(j.TemplateType)
	if err != nil {
		return nil, err
	}
	return Resolve(j, t, custom)
}

// Resolve is a pure function of its inputs: the same journal, template and
// custom prompts always produce deep-equal output.
func Resolve(j *models.Journal, t *models.Template, custom []models.Prompt) (*ResolvedConfig, error) {
	if t == nil || t.Type != j.TemplateType {
		return nil, &TemplateNotFoundError{Type: j.TemplateType}
	}
	if err := CheckPremium(j, t); err != nil {
		return nil, err
	}

	rc := &ResolvedConfig{
		JournalID:       j.ID,
		TemplateID:      t.ID,
		TemplateType:    t.Type,
		TemplateName:    t.Name,
		IsPremium:       t.IsPremium,
		VisualRules:     MergeVisual(t.VisualRules, j.VisualRulesOverride),
		FramingRules:    MergeFraming(t.FramingRules, j.FramingRulesOverride),
		StructuralRules: t.StructuralRules,
		ExportConfig:    t.ExportConfig,
		CadenceConfig:   MergeCadence(t.CadenceConfig, j.CadenceConfigOverride),
		Prompts:         PromptPool(t.PromptPack.Prompts, custom, j.CustomPromptOrder),
		Overrides:       OverriddenFields(j),
	}
	if j.IsPremium && t.AIConfig != nil {
		ai := *t.AIConfig
		rc.AIConfig = &ai
	}
	if rc.Overrides == nil {
		rc.Overrides = []string{}
	}
	return rc, nil
}

// CheckPremium refuses premium templates for journals without a premium
// subscription.
func CheckPremium(j *models.Journal, t *models.Template) error {
	if t.IsPremium && !j.IsPremium {
		return &PremiumRequiredError{Type: t.Type}
	}
	return nil
}

// PromptPool returns the visible prompts in iteration order. The default
// order is the pack order followed by custom prompts in creation order.
// When order is set, listed prompts come first in that order and anything
// it does not mention keeps its default position after them. Tombstoned
// prompts are never included.
func PromptPool(system, custom []models.Prompt, order []string) []models.Prompt {
	live := make([]models.Prompt, 0, len(custom))
	for _, p := range custom {
		if !p.Tombstoned() {
			live = append(live, p)
		}
	}
	sort.SliceStable(live, func(a, b int) bool {
		ca, cb := live[a].CreatedAt, live[b].CreatedAt
		if ca == nil || cb == nil || ca.Equal(*cb) {
			return false
		}
		return ca.Before(*cb)
	})

	def := make([]models.Prompt, 0, len(system)+len(live))
	def = append(def, system...)
	def = append(def, live...)
	if len(order) == 0 {
		return def
	}

	byID := make(map[string]models.Prompt, len(def))
	for _, p := range def {
		byID[p.ID] = p
	}
	out := make([]models.Prompt, 0, len(def))
	placed := make(map[string]bool, len(def))
	for _, id := range order {
		if p, ok := byID[id]; ok && !placed[id] {
			out = append(out, p)
			placed[id] = true
		}
	}
	for _, p := range def {
		if !placed[p.ID] {
			out = append(out, p)
		}
	}
	return out
}
