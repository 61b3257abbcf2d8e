package models

// Override patches are sparse: a nil pointer (or nil slice) means "use the
// template value". Slices replace the template value wholesale.

type VisualRulesPatch struct {
	PrimaryColor    *string  `json:"primary_color,omitempty"`
	AccentColor     *string  `json:"accent_color,omitempty"`
	BackgroundColor *string  `json:"background_color,omitempty"`
	FontFamily      *string  `json:"font_family,omitempty"`
	CoverStyle      *string  `json:"cover_style,omitempty"`
	PhotoLayout     *string  `json:"photo_layout,omitempty"`
	PageBorder      *string  `json:"page_border,omitempty"`
	Decorations     []string `json:"decorations"`
}

func (p *VisualRulesPatch) IsZero() bool {
	return p == nil || (p.PrimaryColor == nil && p.AccentColor == nil && p.BackgroundColor == nil &&
		p.FontFamily == nil && p.CoverStyle == nil && p.PhotoLayout == nil && p.PageBorder == nil &&
		p.Decorations == nil)
}

type FramingRulesPatch struct {
	Tone              *string  `json:"tone,omitempty"`
	GroupBy           *string  `json:"group_by,omitempty"`
	ShowPromptText    *bool    `json:"show_prompt_text,omitempty"`
	ShowAuthor        *bool    `json:"show_author,omitempty"`
	ParticipantNoun   *string  `json:"participant_noun,omitempty"`
	EntryNoun         *string  `json:"entry_noun,omitempty"`
	BookTitleTemplate *string  `json:"book_title_template,omitempty"`
	SectionTitles     []string `json:"section_titles"`
}

func (p *FramingRulesPatch) IsZero() bool {
	return p == nil || (p.Tone == nil && p.GroupBy == nil && p.ShowPromptText == nil && p.ShowAuthor == nil &&
		p.ParticipantNoun == nil && p.EntryNoun == nil && p.BookTitleTemplate == nil && p.SectionTitles == nil)
}

type CadenceConfigPatch struct {
	DefaultFrequency   *Frequency `json:"default_frequency,omitempty"`
	DefaultDayOfWeek   *int       `json:"default_day_of_week,omitempty"`
	DefaultTime        *string    `json:"default_time,omitempty"`
	MaxPromptsPerWeek  *int       `json:"max_prompts_per_week,omitempty"`
	ReminderEnabled    *bool      `json:"reminder_enabled,omitempty"`
	ReminderDelayHours *int       `json:"reminder_delay_hours,omitempty"`
}

func (p *CadenceConfigPatch) IsZero() bool {
	return p == nil || (p.DefaultFrequency == nil && p.DefaultDayOfWeek == nil && p.DefaultTime == nil &&
		p.MaxPromptsPerWeek == nil && p.ReminderEnabled == nil && p.ReminderDelayHours == nil)
}
