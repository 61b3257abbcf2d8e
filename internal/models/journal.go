package models

import (
	"time"

	"github.com/google/uuid"
)

type JournalStatus string

const (
	JournalActive   JournalStatus = "active"
	JournalPaused   JournalStatus = "paused"
	JournalArchived JournalStatus = "archived"
)

func (s JournalStatus) Valid() bool {
	switch s {
	case JournalActive, JournalPaused, JournalArchived:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Journal is a memory book in progress. PromptDayOfWeek is nil iff
// PromptFrequency is daily.
type Journal struct {
	ID                    uuid.UUID           `json:"id" db:"id"`
	OwnerID               uuid.UUID           `json:"owner_id" db:"owner_id"`
	Title                 string              `json:"title" db:"title"`
	TemplateType          TemplateType        `json:"template_type" db:"template_type"`
	Status                JournalStatus       `json:"status" db:"status"`
	IsPremium             bool                `json:"is_premium" db:"is_premium"`
	PromptFrequency       Frequency           `json:"prompt_frequency" db:"prompt_frequency"`
	PromptDayOfWeek       *int                `json:"prompt_day_of_week" db:"prompt_day_of_week"`
	PromptTime            string              `json:"prompt_time" db:"prompt_time"`
	Timezone              string              `json:"timezone" db:"timezone"`
	CustomPromptOrder     []string            `json:"custom_prompt_order,omitempty" db:"custom_prompt_order"`
	VisualRulesOverride   *VisualRulesPatch   `json:"visual_rules_override,omitempty" db:"visual_rules_override"`
	FramingRulesOverride  *FramingRulesPatch  `json:"framing_rules_override,omitempty" db:"framing_rules_override"`
	CadenceConfigOverride *CadenceConfigPatch `json:"cadence_config_override,omitempty" db:"cadence_config_override"`
	CreatedAt             time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at" db:"updated_at"`
}

func (j *Journal) HasCustomOrder() bool {
	return len(j.CustomPromptOrder) > 0
}
