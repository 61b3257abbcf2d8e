package models

// TemplateType identifies one of the system journal templates.
type TemplateType string

const (
	TemplateFamily   TemplateType = "family"
	TemplateFriends  TemplateType = "friends"
	TemplateRomantic TemplateType = "romantic"
	TemplateVacation TemplateType = "vacation"
	TemplateCustom   TemplateType = "custom"
)

var TemplateTypes = []TemplateType{
	TemplateFamily, TemplateFriends, TemplateRomantic, TemplateVacation, TemplateCustom,
}

func (t TemplateType) Valid() bool {
	for _, v := range TemplateTypes {
		if t == v {
			return true
		}
	}
	return false
}

type Category string

const (
	CategoryMemories   Category = "memories"
	CategoryGratitude  Category = "gratitude"
	CategoryMilestones Category = "milestones"
	CategoryTraditions Category = "traditions"
	CategoryWisdom     Category = "wisdom"
	CategoryStories    Category = "stories"
	CategoryDreams     Category = "dreams"
	CategoryDaily      Category = "daily"
	CategoryReflection Category = "reflection"
	CategoryAdventure  Category = "adventure"
	CategoryCustom     Category = "custom"
)

var Categories = []Category{
	CategoryMemories, CategoryGratitude, CategoryMilestones, CategoryTraditions,
	CategoryWisdom, CategoryStories, CategoryDreams, CategoryDaily,
	CategoryReflection, CategoryAdventure, CategoryCustom,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Template is a system template. Templates are loaded once at startup and
// never mutated.
type Template struct {
	ID              string          `json:"id" yaml:"id"`
	Type            TemplateType    `json:"type" yaml:"type"`
	Name            string          `json:"name" yaml:"name"`
	Description     string          `json:"description" yaml:"description"`
	IsPremium       bool            `json:"is_premium" yaml:"is_premium"`
	PromptPack      PromptPack      `json:"prompt_pack" yaml:"prompt_pack"`
	VisualRules     VisualRules     `json:"visual_rules" yaml:"visual_rules"`
	FramingRules    FramingRules    `json:"framing_rules" yaml:"framing_rules"`
	StructuralRules StructuralRules `json:"structural_rules" yaml:"structural_rules"`
	ExportConfig    ExportConfig    `json:"export_config" yaml:"export_config"`
	CadenceConfig   CadenceConfig   `json:"cadence_config" yaml:"cadence_config"`
	AIConfig        *AIConfig       `json:"ai_config,omitempty" yaml:"ai_config,omitempty"`
}

type PromptPack struct {
	Name    string   `json:"name" yaml:"name"`
	Prompts []Prompt `json:"prompts" yaml:"prompts"`
}

type VisualRules struct {
	PrimaryColor    string   `json:"primary_color" yaml:"primary_color"`
	AccentColor     string   `json:"accent_color" yaml:"accent_color"`
	BackgroundColor string   `json:"background_color" yaml:"background_color"`
	FontFamily      string   `json:"font_family" yaml:"font_family"`
	CoverStyle      string   `json:"cover_style" yaml:"cover_style"`
	PhotoLayout     string   `json:"photo_layout" yaml:"photo_layout"`
	PageBorder      string   `json:"page_border" yaml:"page_border"`
	Decorations     []string `json:"decorations" yaml:"decorations"`
}

type FramingRules struct {
	Tone              string   `json:"tone" yaml:"tone"`
	GroupBy           string   `json:"group_by" yaml:"group_by"`
	ShowPromptText    bool     `json:"show_prompt_text" yaml:"show_prompt_text"`
	ShowAuthor        bool     `json:"show_author" yaml:"show_author"`
	ParticipantNoun   string   `json:"participant_noun" yaml:"participant_noun"`
	EntryNoun         string   `json:"entry_noun" yaml:"entry_noun"`
	BookTitleTemplate string   `json:"book_title_template" yaml:"book_title_template"`
	SectionTitles     []string `json:"section_titles" yaml:"section_titles"`
}

type CadenceConfig struct {
	DefaultFrequency   Frequency `json:"default_frequency" yaml:"default_frequency"`
	DefaultDayOfWeek   *int      `json:"default_day_of_week" yaml:"default_day_of_week"`
	DefaultTime        string    `json:"default_time" yaml:"default_time"`
	MaxPromptsPerWeek  int       `json:"max_prompts_per_week" yaml:"max_prompts_per_week"`
	ReminderEnabled    bool      `json:"reminder_enabled" yaml:"reminder_enabled"`
	ReminderDelayHours int       `json:"reminder_delay_hours" yaml:"reminder_delay_hours"`
}

type StructuralRules struct {
	MinEntriesForBook      int  `json:"min_entries_for_book" yaml:"min_entries_for_book"`
	MaxEntriesPerPage      int  `json:"max_entries_per_page" yaml:"max_entries_per_page"`
	IncludeTableOfContents bool `json:"include_table_of_contents" yaml:"include_table_of_contents"`
	ChapterBreaks          bool `json:"chapter_breaks" yaml:"chapter_breaks"`
}

type ExportConfig struct {
	PageSize     string `json:"page_size" yaml:"page_size"`
	IncludeCover bool   `json:"include_cover" yaml:"include_cover"`
	ImageQuality string `json:"image_quality" yaml:"image_quality"`
}

// AIConfig is only surfaced to premium journals.
type AIConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	Provider          string `json:"provider,omitempty" yaml:"provider"`
	Model             string `json:"model,omitempty" yaml:"model"`
	FollowUpQuestions bool   `json:"follow_up_questions" yaml:"follow_up_questions"`
	SuggestionCount   int    `json:"suggestion_count" yaml:"suggestion_count"`
	Persona           string `json:"persona,omitempty" yaml:"persona"`
}
