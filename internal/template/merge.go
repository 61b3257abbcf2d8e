package template

import "github.com/keepswell/keepswell-api/internal/models"

// Each section has an explicit per-field merge so the enum checks in
// rules.go stay tied to individual fields. Slices are never shared with the
// inputs.

func MergeVisual(base models.VisualRules, o *models.VisualRulesPatch) models.VisualRules {
	out := base
	out.Decorations = cloneStrings(base.Decorations)
	if o == nil {
		return out
	}
	set(&out.PrimaryColor, o.PrimaryColor)
	set(&out.AccentColor, o.AccentColor)
	set(&out.BackgroundColor, o.BackgroundColor)
	set(&out.FontFamily, o.FontFamily)
	set(&out.CoverStyle, o.CoverStyle)
	set(&out.PhotoLayout, o.PhotoLayout)
	set(&out.PageBorder, o.PageBorder)
	if o.Decorations != nil {
		out.Decorations = cloneStrings(o.Decorations)
	}
	return out
}

func MergeFraming(base models.FramingRules, o *models.FramingRulesPatch) models.FramingRules {
	out := base
	out.SectionTitles = cloneStrings(base.SectionTitles)
	if o == nil {
		return out
	}
	set(&out.Tone, o.Tone)
	set(&out.GroupBy, o.GroupBy)
	set(&out.ShowPromptText, o.ShowPromptText)
	set(&out.ShowAuthor, o.ShowAuthor)
	set(&out.ParticipantNoun, o.ParticipantNoun)
	set(&out.EntryNoun, o.EntryNoun)
	set(&out.BookTitleTemplate, o.BookTitleTemplate)
	if o.SectionTitles != nil {
		out.SectionTitles = cloneStrings(o.SectionTitles)
	}
	return out
}

// MergeCadence drops the day of week when the merged frequency is daily.
func MergeCadence(base models.CadenceConfig, o *models.CadenceConfigPatch) models.CadenceConfig {
	out := base
	out.DefaultDayOfWeek = cloneInt(base.DefaultDayOfWeek)
	if o != nil {
		set(&out.DefaultFrequency, o.DefaultFrequency)
		if o.DefaultDayOfWeek != nil {
			out.DefaultDayOfWeek = cloneInt(o.DefaultDayOfWeek)
		}
		set(&out.DefaultTime, o.DefaultTime)
		set(&out.MaxPromptsPerWeek, o.MaxPromptsPerWeek)
		set(&out.ReminderEnabled, o.ReminderEnabled)
		set(&out.ReminderDelayHours, o.ReminderDelayHours)
	}
	if out.DefaultFrequency == models.FrequencyDaily {
		out.DefaultDayOfWeek = nil
	}
	return out
}

// MergeVisualPatch layers next over prev. The result is what gets persisted
// as the journal's sparse override.
func MergeVisualPatch(prev, next *models.VisualRulesPatch) *models.VisualRulesPatch {
	out := models.VisualRulesPatch{}
	if prev != nil {
		out = *prev
	}
	if next != nil {
		keep(&out.PrimaryColor, next.PrimaryColor)
		keep(&out.AccentColor, next.AccentColor)
		keep(&out.BackgroundColor, next.BackgroundColor)
		keep(&out.FontFamily, next.FontFamily)
		keep(&out.CoverStyle, next.CoverStyle)
		keep(&out.PhotoLayout, next.PhotoLayout)
		keep(&out.PageBorder, next.PageBorder)
		if next.Decorations != nil {
			out.Decorations = cloneStrings(next.Decorations)
		}
	}
	if out.IsZero() {
		return nil
	}
	return &out
}

func MergeFramingPatch(prev, next *models.FramingRulesPatch) *models.FramingRulesPatch {
	out := models.FramingRulesPatch{}
	if prev != nil {
		out = *prev
	}
	if next != nil {
		keep(&out.Tone, next.Tone)
		keep(&out.GroupBy, next.GroupBy)
		keep(&out.ShowPromptText, next.ShowPromptText)
		keep(&out.ShowAuthor, next.ShowAuthor)
		keep(&out.ParticipantNoun, next.ParticipantNoun)
		keep(&out.EntryNoun, next.EntryNoun)
		keep(&out.BookTitleTemplate, next.BookTitleTemplate)
		if next.SectionTitles != nil {
			out.SectionTitles = cloneStrings(next.SectionTitles)
		}
	}
	if out.IsZero() {
		return nil
	}
	return &out
}

func MergeCadencePatch(prev, next *models.CadenceConfigPatch) *models.CadenceConfigPatch {
	out := models.CadenceConfigPatch{}
	if prev != nil {
		out = *prev
	}
	if next != nil {
		keep(&out.DefaultFrequency, next.DefaultFrequency)
		keep(&out.DefaultDayOfWeek, next.DefaultDayOfWeek)
		keep(&out.DefaultTime, next.DefaultTime)
		keep(&out.MaxPromptsPerWeek, next.MaxPromptsPerWeek)
		keep(&out.ReminderEnabled, next.ReminderEnabled)
		keep(&out.ReminderDelayHours, next.ReminderDelayHours)
	}
	if out.IsZero() {
		return nil
	}
	return &out
}

// OverriddenFields lists the dotted field paths a journal overrides, in a
// fixed order.
func OverriddenFields(j *models.Journal) []string {
	var out []string
	add := func(cond bool, path string) {
		if cond {
			out = append(out, path)
		}
	}
	if v := j.VisualRulesOverride; v != nil {
		add(v.PrimaryColor != nil, "visual_rules.primary_color")
		add(v.AccentColor != nil, "visual_rules.accent_color")
		add(v.BackgroundColor != nil, "visual_rules.background_color")
		add(v.FontFamily != nil, "visual_rules.font_family")
		add(v.CoverStyle != nil, "visual_rules.cover_style")
		add(v.PhotoLayout != nil, "visual_rules.photo_layout")
		add(v.PageBorder != nil, "visual_rules.page_border")
		add(v.Decorations != nil, "visual_rules.decorations")
	}
	if f := j.FramingRulesOverride; f != nil {
		add(f.Tone != nil, "framing_rules.tone")
		add(f.GroupBy != nil, "framing_rules.group_by")
		add(f.ShowPromptText != nil, "framing_rules.show_prompt_text")
		add(f.ShowAuthor != nil, "framing_rules.show_author")
		add(f.ParticipantNoun != nil, "framing_rules.participant_noun")
		add(f.EntryNoun != nil, "framing_rules.entry_noun")
		add(f.BookTitleTemplate != nil, "framing_rules.book_title_template")
		add(f.SectionTitles != nil, "framing_rules.section_titles")
	}
	if c := j.CadenceConfigOverride; c != nil {
		add(c.DefaultFrequency != nil, "cadence_config.default_frequency")
		add(c.DefaultDayOfWeek != nil, "cadence_config.default_day_of_week")
		add(c.DefaultTime != nil, "cadence_config.default_time")
		add(c.MaxPromptsPerWeek != nil, "cadence_config.max_prompts_per_week")
		add(c.ReminderEnabled != nil, "cadence_config.reminder_enabled")
		add(c.ReminderDelayHours != nil, "cadence_config.reminder_delay_hours")
	}
	return out
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func keep[T any](dst **T, v *T) {
	if v != nil {
		c := *v
		*dst = &c
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
