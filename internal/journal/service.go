// Package journal owns per-journal state: settings, customization
// overrides, custom prompts, prompt order and the send log.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/audit"
	"github.com/keepswell/keepswell-api/internal/identity"
	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/schedule"
	"github.com/keepswell/keepswell-api/internal/selector"
	"github.com/keepswell/keepswell-api/internal/template"
)

// ConfigCache caches resolved configs by journal id.
type ConfigCache interface {
	GetOrLoad(ctx context.Context, journalID uuid.UUID, load func(context.Context) (*template.ResolvedConfig, error)) (*template.ResolvedConfig, error)
	Invalidate(ctx context.Context, journalIDs ...uuid.UUID) error
}

type Auditor interface {
	Record(ctx context.Context, entry audit.LogEntry)
}

// EventPublisher hands dispatched prompts to the delivery pipeline.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

type Service struct {
	store    Store
	resolver *template.Resolver
	selector *selector.Selector
	cache    ConfigCache
	audit    Auditor
	events   EventPublisher
	now      func() time.Time
}

func NewService(store Store, resolver *template.Resolver, sel *selector.Selector, cache ConfigCache, auditor Auditor, events EventPublisher) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		selector: sel,
		cache:    cache,
		audit:    auditor,
		events:   events,
		now:      time.Now,
	}
}

// canRead allows the owner and authenticated service principals.
func canRead(ctx context.Context, j *models.Journal) error {
	if identity.ServiceFromContext(ctx) != nil {
		return nil
	}
	return canWrite(ctx, j)
}

// canWrite allows only the owner.
func canWrite(ctx context.Context, j *models.Journal) error {
	if u := identity.UserFromContext(ctx); u != nil && u.ID == j.OwnerID {
		return nil
	}
	return ErrForbidden
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Journal, error) {
	j, err := s.store.GetJournal(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canRead(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

type CreateRequest struct {
	Title           string              `json:"title"`
	TemplateType    models.TemplateType `json:"template_type"`
	PromptFrequency *models.Frequency   `json:"prompt_frequency,omitempty"`
	PromptDayOfWeek *int                `json:"prompt_day_of_week,omitempty"`
	PromptTime      *string             `json:"prompt_time,omitempty"`
	Timezone        string              `json:"timezone,omitempty"`
}

// Create starts a journal for the current user. The schedule defaults to
// the template's cadence.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Journal, error) {
	user := identity.UserFromContext(ctx)
	if user == nil {
		return nil, ErrForbidden
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > 200 {
		return nil, &template.InvalidConfigValueError{Field: "title", Value: req.Title, Reason: "must be 1-200 characters"}
	}
	if !req.TemplateType.Valid() {
		return nil, &template.InvalidConfigValueError{Field: "template_type", Value: req.TemplateType,
			Reason: "must be one of family, friends, romantic, vacation, custom"}
	}

	t, err := s.resolver.Catalog().ByType(req.TemplateType)
	if err != nil {
		s.integrityViolation(ctx, nil, err)
		return nil, err
	}

	j := &models.Journal{
		ID:              uuid.New(),
		OwnerID:         user.ID,
		Title:           title,
		TemplateType:    t.Type,
		Status:          models.JournalActive,
		IsPremium:       user.IsPremium,
		PromptFrequency: t.CadenceConfig.DefaultFrequency,
		PromptDayOfWeek: t.CadenceConfig.DefaultDayOfWeek,
		PromptTime:      t.CadenceConfig.DefaultTime,
		Timezone:        "UTC",
	}
	if err := template.CheckPremium(j, t); err != nil {
		return nil, err
	}

	if req.PromptFrequency != nil {
		j.PromptFrequency = *req.PromptFrequency
		if j.PromptFrequency == models.FrequencyDaily {
			j.PromptDayOfWeek = nil
		}
	}
	if req.PromptDayOfWeek != nil {
		j.PromptDayOfWeek = req.PromptDayOfWeek
	}
	if req.PromptTime != nil {
		j.PromptTime = *req.PromptTime
	}
	if req.Timezone != "" {
		j.Timezone = req.Timezone
	}
	if err := schedule.FromJournal(j).Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateJournal(ctx, j); err != nil {
		return nil, fmt.Errorf("create journal: %w", err)
	}

	s.audit.Record(ctx, audit.LogEntry{
		JournalID:    &j.ID,
		Action:       audit.ActionJournalCreate,
		ResourceType: "journal",
		ResourceID:   j.ID.String(),
		Details:      map[string]interface{}{"template_type": j.TemplateType},
	})
	return j, nil
}

// SettingsPatch changes a journal's title, status or schedule. Switching to
// daily clears the day of week.
type SettingsPatch struct {
	Title           *string               `json:"title,omitempty"`
	Status          *models.JournalStatus `json:"status,omitempty"`
	PromptFrequency *models.Frequency     `json:"prompt_frequency,omitempty"`
	PromptDayOfWeek *int                  `json:"prompt_day_of_week,omitempty"`
	PromptTime      *string               `json:"prompt_time,omitempty"`
	Timezone        *string               `json:"timezone,omitempty"`
}

func (s *Service) UpdateSettings(ctx context.Context, id uuid.UUID, patch SettingsPatch) (*models.Journal, error) {
	var updated *models.Journal
	err := s.store.WithJournalLock(ctx, id, func(tx Store, j *models.Journal) error {
		if err := canWrite(ctx, j); err != nil {
			return err
		}

		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" || len(title) > 200 {
				return &template.InvalidConfigValueError{Field: "title", Value: *patch.Title, Reason: "must be 1-200 characters"}
			}
			j.Title = title
		}
		if patch.Status != nil {
			if !patch.Status.Valid() {
				return &template.InvalidConfigValueError{Field: "status", Value: *patch.Status,
					Reason: "must be one of active, paused, archived"}
			}
			j.Status = *patch.Status
		}
		if patch.PromptFrequency != nil {
			j.PromptFrequency = *patch.PromptFrequency
			if j.PromptFrequency == models.FrequencyDaily && patch.PromptDayOfWeek == nil {
				j.PromptDayOfWeek = nil
			}
		}
		if patch.PromptDayOfWeek != nil {
			j.PromptDayOfWeek = patch.PromptDayOfWeek
		}
		if patch.PromptTime != nil {
			j.PromptTime = *patch.PromptTime
		}
		if patch.Timezone != nil {
			j.Timezone = *patch.Timezone
		}
		if err := schedule.FromJournal(j).Validate(); err != nil {
			return err
		}

		if err := tx.SaveJournal(ctx, j); err != nil {
			return err
		}
		updated = j
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	s.audit.Record(ctx, audit.LogEntry{
		JournalID:    &id,
		Action:       audit.ActionJournalSettings,
		ResourceType: "journal",
		ResourceID:   id.String(),
		Details:      map[string]interface{}{"patch": patch},
	})
	return updated, nil
}

// ResolveConfig returns the journal's resolved template config, from cache
// when possible.
func (s *Service) ResolveConfig(ctx context.Context, id uuid.UUID) (*template.ResolvedConfig, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolveFor(ctx, j)
}

func (s *Service) resolveFor(ctx context.Context, j *models.Journal) (*template.ResolvedConfig, error) {
	return s.cache.GetOrLoad(ctx, j.ID, func(ctx context.Context) (*template.ResolvedConfig, error) {
		return s.resolve(ctx, s.store, j)
	})
}

// resolve computes the config from store without touching the cache.
func (s *Service) resolve(ctx context.Context, store Store, j *models.Journal) (*template.ResolvedConfig, error) {
	custom, err := store.ListCustomPrompts(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	rc, err := s.resolver.Resolve(j, custom)
	if err != nil {
		s.integrityViolation(ctx, j, err)
		return nil, err
	}
	return rc, nil
}

// integrityViolation logs and audits a missing template. Other errors pass
// through silently.
func (s *Service) integrityViolation(ctx context.Context, j *models.Journal, err error) {
	var nf *template.TemplateNotFoundError
	if !errors.As(err, &nf) {
		return
	}

	entry := audit.LogEntry{
		Action:       audit.ActionIntegrity,
		ResourceType: "template",
		ResourceID:   string(nf.Type),
		Severity:     audit.SeverityHigh,
		Details:      map[string]interface{}{"error": err.Error()},
	}
	attrs := []any{"template_type", nf.Type, "error", err}
	if j != nil {
		entry.JournalID = &j.ID
		attrs = append(attrs, "journal_id", j.ID)
	}
	slog.Error("template integrity violation", attrs...)
	s.audit.Record(ctx, entry)
}

func (s *Service) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		slog.Warn("config cache invalidation failed", "journal_ids", ids, "error", err)
	}
}

// InvalidateConfigs drops cached configs, e.g. after a tier change.
func (s *Service) InvalidateConfigs(ctx context.Context, ids ...uuid.UUID) {
	s.invalidate(ctx, ids...)
}

type SelectRequest struct {
	ParticipantID    *uuid.UUID      `json:"participant_id,omitempty"`
	PreferCategory   models.Category `json:"prefer_category,omitempty"`
	ExcludePromptIDs []string        `json:"exclude_prompt_ids,omitempty"`
	ParticipantCount int             `json:"participant_count,omitempty"`
}

// SelectPrompt picks the journal's next prompt without recording a send.
func (s *Service) SelectPrompt(ctx context.Context, id uuid.UUID, req SelectRequest) (*selector.Result, error) {
	if req.PreferCategory != "" && !req.PreferCategory.Valid() {
		return nil, &template.InvalidConfigValueError{Field: "prefer_category", Value: req.PreferCategory, Reason: "unknown category"}
	}

	j, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rc, err := s.resolveFor(ctx, j)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListSends(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.selector.SelectNext(rc.Prompts, history, selector.Options{
		ParticipantID:    req.ParticipantID,
		PreferCategory:   req.PreferCategory,
		ExcludePromptIDs: req.ExcludePromptIDs,
		Ordered:          j.HasCustomOrder(),
		ParticipantCount: req.ParticipantCount,
	})
}
