package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/audit"
	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/template"
)

const (
	SectionVisual  = "visual_rules"
	SectionFraming = "framing_rules"
	SectionCadence = "cadence_config"
)

// Customization is a sparse patch over a journal's overrides. Fields left
// nil keep their current override (or template value).
type Customization struct {
	VisualRules   *models.VisualRulesPatch   `json:"visual_rules,omitempty"`
	FramingRules  *models.FramingRulesPatch  `json:"framing_rules,omitempty"`
	CadenceConfig *models.CadenceConfigPatch `json:"cadence_config,omitempty"`
}

func (c Customization) sections() []string {
	var out []string
	if !c.VisualRules.IsZero() {
		out = append(out, SectionVisual)
	}
	if !c.FramingRules.IsZero() {
		out = append(out, SectionFraming)
	}
	if !c.CadenceConfig.IsZero() {
		out = append(out, SectionCadence)
	}
	return out
}

// ApplyCustomization validates patch, merges it into the journal's stored
// overrides and returns the new resolved config.
func (s *Service) ApplyCustomization(ctx context.Context, id uuid.UUID, patch Customization) (*template.ResolvedConfig, error) {
	sections := patch.sections()
	if len(sections) == 0 {
		return nil, &template.InvalidConfigValueError{Field: "customization", Reason: "must change at least one field"}
	}
	if err := template.ValidateVisualPatch(patch.VisualRules); err != nil {
		return nil, err
	}
	if err := template.ValidateFramingPatch(patch.FramingRules); err != nil {
		return nil, err
	}
	if err := template.ValidateCadencePatch(patch.CadenceConfig); err != nil {
		return nil, err
	}

	var rc *template.ResolvedConfig
	err := s.store.WithJournalLock(ctx, id, func(tx Store, j *models.Journal) error {
		if err := canWrite(ctx, j); err != nil {
			return err
		}
		t, err := s.resolver.Catalog().ByType(j.TemplateType)
		if err != nil {
			s.integrityViolation(ctx, j, err)
			return err
		}
		if err := template.CheckPremium(j, t); err != nil {
			return err
		}

		j.VisualRulesOverride = template.MergeVisualPatch(j.VisualRulesOverride, patch.VisualRules)
		j.FramingRulesOverride = template.MergeFramingPatch(j.FramingRulesOverride, patch.FramingRules)
		j.CadenceConfigOverride = template.MergeCadencePatch(j.CadenceConfigOverride, patch.CadenceConfig)

		// Field-level checks pass on their own but the merged cadence can
		// still pair a weekly frequency with no day.
		if err := template.ValidateCadence(template.MergeCadence(t.CadenceConfig, j.CadenceConfigOverride)); err != nil {
			return err
		}

		if err := tx.SaveJournal(ctx, j); err != nil {
			return err
		}
		rc, err = s.resolve(ctx, tx, j)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.audit.Record(ctx, audit.LogEntry{
		JournalID:    &id,
		Action:       audit.ActionCustomize,
		ResourceType: "journal",
		ResourceID:   id.String(),
		Details:      map[string]interface{}{"sections": sections, "overrides": rc.Overrides},
	})
	return rc, nil
}

// ResetCustomization clears the named override sections, or all of them
// when none are named.
func (s *Service) ResetCustomization(ctx context.Context, id uuid.UUID, sections ...string) (*template.ResolvedConfig, error) {
	if len(sections) == 0 {
		sections = []string{SectionVisual, SectionFraming, SectionCadence}
	}
	for _, sec := range sections {
		switch sec {
		case SectionVisual, SectionFraming, SectionCadence:
		default:
			return nil, &template.InvalidConfigValueError{Field: "sections", Value: sec,
				Reason: fmt.Sprintf("must be one of %s, %s, %s", SectionVisual, SectionFraming, SectionCadence)}
		}
	}

	var rc *template.ResolvedConfig
	err := s.store.WithJournalLock(ctx, id, func(tx Store, j *models.Journal) error {
		if err := canWrite(ctx, j); err != nil {
			return err
		}
		for _, sec := range sections {
			switch sec {
			case SectionVisual:
				j.VisualRulesOverride = nil
			case SectionFraming:
				j.FramingRulesOverride = nil
			case SectionCadence:
				j.CadenceConfigOverride = nil
			}
		}
		if err := tx.SaveJournal(ctx, j); err != nil {
			return err
		}
		var err error
		rc, err = s.resolve(ctx, tx, j)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.audit.Record(ctx, audit.LogEntry{
		JournalID:    &id,
		Action:       audit.ActionResetCustomization,
		ResourceType: "journal",
		ResourceID:   id.String(),
		Details:      map[string]interface{}{"sections": sections},
	})
	return rc, nil
}
