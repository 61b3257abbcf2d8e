package template

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/keepswell/keepswell-api/internal/models"
)

var (
	FontFamilies  = []string{"serif", "sans", "handwritten", "modern"}
	CoverStyles   = []string{"classic", "minimal", "photo", "illustrated"}
	PhotoLayouts  = []string{"grid", "collage", "single", "polaroid"}
	PageBorders   = []string{"none", "simple", "ornate"}
	Tones         = []string{"warm", "playful", "romantic", "reflective", "adventurous"}
	GroupBys      = []string{"day", "week", "month", "chapter"}
	PageSizes     = []string{"letter", "a4", "square"}
	ImageQualitys = []string{"standard", "high"}

	// Placeholders a book title may reference.
	TitleVariables = []string{"journal_title", "owner_name", "year"}
)

const (
	maxDecorations     = 12
	maxDecorationLen   = 32
	maxSectionTitles   = 24
	maxSectionTitleLen = 80
	maxNounLen         = 40
	maxTitleTmplLen    = 120
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func checkEnum(field, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return invalid(field, value, "must be one of %s", strings.Join(allowed, ", "))
	}
	return nil
}

func checkColor(field, value string) error {
	if !hexColor.MatchString(value) {
		return invalid(field, value, "must be a #RRGGBB hex color")
	}
	return nil
}

func checkNoun(field, value string) error {
	v := strings.TrimSpace(value)
	if v == "" || len(v) > maxNounLen {
		return invalid(field, value, "must be 1-%d characters", maxNounLen)
	}
	return nil
}

func checkStrings(field string, values []string, maxItems, maxLen int) error {
	if len(values) > maxItems {
		return invalid(field, values, "at most %d items allowed", maxItems)
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "" || len(v) > maxLen {
			return invalid(field, v, "items must be 1-%d characters", maxLen)
		}
	}
	return nil
}

func checkTitleTemplate(field, value string) error {
	if len(value) > maxTitleTmplLen {
		return invalid(field, value, "must be at most %d characters", maxTitleTmplLen)
	}
	for _, v := range Placeholders(value) {
		if !slices.Contains(TitleVariables, v) {
			return invalid(field, value, "unknown placeholder {{%s}}", v)
		}
	}
	return nil
}

func checkClock(field, value string) error {
	if _, err := time.Parse("15:04", value); err != nil {
		return invalid(field, value, "must be HH:MM (24h)")
	}
	return nil
}

func checkRange(field string, value, lo, hi int) error {
	if value < lo || value > hi {
		return invalid(field, value, "must be between %d and %d", lo, hi)
	}
	return nil
}

// ValidateVisualPatch checks only the fields present in p.
func ValidateVisualPatch(p *models.VisualRulesPatch) error {
	if p == nil {
		return nil
	}
	checks := []func() error{
		func() error { return optional(p.PrimaryColor, func(v string) error { return checkColor("visual_rules.primary_color", v) }) },
		func() error { return optional(p.AccentColor, func(v string) error { return checkColor("visual_rules.accent_color", v) }) },
		func() error {
			return optional(p.BackgroundColor, func(v string) error { return checkColor("visual_rules.background_color", v) })
		},
		func() error {
			return optional(p.FontFamily, func(v string) error { return checkEnum("visual_rules.font_family", v, FontFamilies) })
		},
		func() error {
			return optional(p.CoverStyle, func(v string) error { return checkEnum("visual_rules.cover_style", v, CoverStyles) })
		},
		func() error {
			return optional(p.PhotoLayout, func(v string) error { return checkEnum("visual_rules.photo_layout", v, PhotoLayouts) })
		},
		func() error {
			return optional(p.PageBorder, func(v string) error { return checkEnum("visual_rules.page_border", v, PageBorders) })
		},
		func() error {
			if p.Decorations == nil {
				return nil
			}
			return checkStrings("visual_rules.decorations", p.Decorations, maxDecorations, maxDecorationLen)
		},
	}
	return firstError(checks)
}

// ValidateFramingPatch checks only the fields present in p.
func ValidateFramingPatch(p *models.FramingRulesPatch) error {
	if p == nil {
		return nil
	}
	checks := []func() error{
		func() error { return optional(p.Tone, func(v string) error { return checkEnum("framing_rules.tone", v, Tones) }) },
		func() error {
			return optional(p.GroupBy, func(v string) error { return checkEnum("framing_rules.group_by", v, GroupBys) })
		},
		func() error {
			return optional(p.ParticipantNoun, func(v string) error { return checkNoun("framing_rules.participant_noun", v) })
		},
		func() error {
			return optional(p.EntryNoun, func(v string) error { return checkNoun("framing_rules.entry_noun", v) })
		},
		func() error {
			return optional(p.BookTitleTemplate, func(v string) error {
				return checkTitleTemplate("framing_rules.book_title_template", v)
			})
		},
		func() error {
			if p.SectionTitles == nil {
				return nil
			}
			return checkStrings("framing_rules.section_titles", p.SectionTitles, maxSectionTitles, maxSectionTitleLen)
		},
	}
	return firstError(checks)
}

// ValidateCadencePatch checks only the fields present in p. Cross-field
// rules (day of week vs frequency) are checked on the merged result by
// ValidateCadence.
func ValidateCadencePatch(p *models.CadenceConfigPatch) error {
	if p == nil {
		return nil
	}
	checks := []func() error{
		func() error {
			if p.DefaultFrequency != nil && !p.DefaultFrequency.Valid() {
				return invalid("cadence_config.default_frequency", *p.DefaultFrequency,
					"must be one of daily, weekly, biweekly, monthly")
			}
			return nil
		},
		func() error {
			return optional(p.DefaultDayOfWeek, func(v int) error {
				return checkRange("cadence_config.default_day_of_week", v, 0, 6)
			})
		},
		func() error {
			return optional(p.DefaultTime, func(v string) error { return checkClock("cadence_config.default_time", v) })
		},
		func() error {
			return optional(p.MaxPromptsPerWeek, func(v int) error {
				return checkRange("cadence_config.max_prompts_per_week", v, 1, 14)
			})
		},
		func() error {
			return optional(p.ReminderDelayHours, func(v int) error {
				return checkRange("cadence_config.reminder_delay_hours", v, 1, 72)
			})
		},
	}
	return firstError(checks)
}

func ValidateVisualRules(v models.VisualRules) error {
	return ValidateVisualPatch(&models.VisualRulesPatch{
		PrimaryColor:    &v.PrimaryColor,
		AccentColor:     &v.AccentColor,
		BackgroundColor: &v.BackgroundColor,
		FontFamily:      &v.FontFamily,
		CoverStyle:      &v.CoverStyle,
		PhotoLayout:     &v.PhotoLayout,
		PageBorder:      &v.PageBorder,
		Decorations:     v.Decorations,
	})
}

func ValidateFramingRules(f models.FramingRules) error {
	return ValidateFramingPatch(&models.FramingRulesPatch{
		Tone:              &f.Tone,
		GroupBy:           &f.GroupBy,
		ParticipantNoun:   &f.ParticipantNoun,
		EntryNoun:         &f.EntryNoun,
		BookTitleTemplate: &f.BookTitleTemplate,
		SectionTitles:     f.SectionTitles,
	})
}

// ValidateCadence checks a complete cadence section, including the rule
// that a day of week is set iff the frequency is not daily.
func ValidateCadence(c models.CadenceConfig) error {
	err := ValidateCadencePatch(&models.CadenceConfigPatch{
		DefaultFrequency:   &c.DefaultFrequency,
		DefaultDayOfWeek:   c.DefaultDayOfWeek,
		DefaultTime:        &c.DefaultTime,
		MaxPromptsPerWeek:  &c.MaxPromptsPerWeek,
		ReminderDelayHours: &c.ReminderDelayHours,
	})
	if err != nil {
		return err
	}
	if c.DefaultFrequency == models.FrequencyDaily && c.DefaultDayOfWeek != nil {
		return invalid("cadence_config.default_day_of_week", *c.DefaultDayOfWeek, "must be unset for daily frequency")
	}
	if c.DefaultFrequency != models.FrequencyDaily && c.DefaultDayOfWeek == nil {
		return invalid("cadence_config.default_day_of_week", nil, "is required for %s frequency", c.DefaultFrequency)
	}
	return nil
}

func ValidateStructural(s models.StructuralRules) error {
	if err := checkRange("structural_rules.min_entries_for_book", s.MinEntriesForBook, 0, 1000); err != nil {
		return err
	}
	return checkRange("structural_rules.max_entries_per_page", s.MaxEntriesPerPage, 1, 12)
}

func ValidateExport(e models.ExportConfig) error {
	if err := checkEnum("export_config.page_size", e.PageSize, PageSizes); err != nil {
		return err
	}
	return checkEnum("export_config.image_quality", e.ImageQuality, ImageQualitys)
}

func ValidateAI(a *models.AIConfig) error {
	if a == nil || !a.Enabled {
		return nil
	}
	if err := checkEnum("ai_config.provider", a.Provider, []string{"anthropic", "openai"}); err != nil {
		return err
	}
	return checkRange("ai_config.suggestion_count", a.SuggestionCount, 1, 10)
}

func optional[T any](v *T, check func(T) error) error {
	if v == nil {
		return nil
	}
	return check(*v)
}

func firstError(checks []func() error) error {
	for _, c := range checks {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}
