package template

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keepswell/keepswell-api/internal/models"
)

//go:embed catalog/*.yaml
var builtin embed.FS

// Catalog holds the system templates, one per type. It is built once at
// startup and is safe for concurrent reads; accessors hand out copies.
type Catalog struct {
	byType  map[models.TemplateType]models.Template
	prompts map[string]models.Prompt
}

// LoadCatalog loads the templates compiled into the binary.
func LoadCatalog() (*Catalog, error) {
	sub, err := fs.Sub(builtin, "catalog")
	if err != nil {
		return nil, fmt.Errorf("open builtin catalog: %w", err)
	}
	return LoadCatalogFS(sub)
}

// LoadCatalogFS reads every *.yaml file at the root of fsys as one template.
func LoadCatalogFS(fsys fs.FS) (*Catalog, error) {
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob catalog files: %w", err)
	}
	sort.Strings(files)

	var templates []models.Template
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		var t models.Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path.Base(f), err)
		}
		templates = append(templates, t)
	}
	return NewCatalog(templates)
}

// NewCatalog validates templates and indexes them by type.
func NewCatalog(templates []models.Template) (*Catalog, error) {
	c := &Catalog{
		byType:  make(map[models.TemplateType]models.Template, len(templates)),
		prompts: make(map[string]models.Prompt),
	}

	for _, t := range templates {
		if !t.Type.Valid() {
			return nil, fmt.Errorf("template %s: unknown type %q", t.ID, t.Type)
		}
		if _, dup := c.byType[t.Type]; dup {
			return nil, fmt.Errorf("template %s: duplicate template for type %q", t.ID, t.Type)
		}
		if t.Type == models.TemplateCustom && t.IsPremium {
			return nil, fmt.Errorf("template %s: custom template cannot be premium", t.ID)
		}
		if err := validateTemplate(t); err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
		for _, p := range t.PromptPack.Prompts {
			if _, dup := c.prompts[p.ID]; dup {
				return nil, fmt.Errorf("template %s: duplicate prompt id %q", t.ID, p.ID)
			}
			c.prompts[p.ID] = p
		}
		c.byType[t.Type] = t
	}

	for _, tt := range models.TemplateTypes {
		if _, ok := c.byType[tt]; !ok {
			return nil, fmt.Errorf("catalog is missing a %q template", tt)
		}
	}
	return c, nil
}

func validateTemplate(t models.Template) error {
	if t.ID == "" {
		return fmt.Errorf("missing id")
	}
	if len(t.PromptPack.Prompts) == 0 {
		return fmt.Errorf("prompt pack is empty")
	}
	for _, p := range t.PromptPack.Prompts {
		if p.ID == "" || strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("prompt %q: id and text are required", p.ID)
		}
		if !p.Category.Valid() {
			return fmt.Errorf("prompt %q: unknown category %q", p.ID, p.Category)
		}
		if p.Weight < 0 {
			return fmt.Errorf("prompt %q: negative weight", p.ID)
		}
	}
	if err := ValidateVisualRules(t.VisualRules); err != nil {
		return err
	}
	if err := ValidateFramingRules(t.FramingRules); err != nil {
		return err
	}
	if err := ValidateCadence(t.CadenceConfig); err != nil {
		return err
	}
	if err := ValidateStructural(t.StructuralRules); err != nil {
		return err
	}
	if err := ValidateExport(t.ExportConfig); err != nil {
		return err
	}
	return ValidateAI(t.AIConfig)
}

// ByType returns a copy of the template for tt.
func (c *Catalog) ByType(tt models.TemplateType) (*models.Template, error) {
	t, ok := c.byType[tt]
	if !ok {
		return nil, &TemplateNotFoundError{Type: tt}
	}
	return cloneTemplate(t), nil
}

// All returns copies of every template in models.TemplateTypes order.
func (c *Catalog) All() []models.Template {
	out := make([]models.Template, 0, len(c.byType))
	for _, tt := range models.TemplateTypes {
		if t, ok := c.byType[tt]; ok {
			out = append(out, *cloneTemplate(t))
		}
	}
	return out
}

// Prompt looks up a system prompt by id across all packs.
func (c *Catalog) Prompt(id string) (models.Prompt, bool) {
	p, ok := c.prompts[id]
	return p, ok
}

func cloneTemplate(t models.Template) *models.Template {
	out := t
	out.PromptPack.Prompts = append([]models.Prompt(nil), t.PromptPack.Prompts...)
	out.VisualRules.Decorations = cloneStrings(t.VisualRules.Decorations)
	out.FramingRules.SectionTitles = cloneStrings(t.FramingRules.SectionTitles)
	out.CadenceConfig.DefaultDayOfWeek = cloneInt(t.CadenceConfig.DefaultDayOfWeek)
	if t.AIConfig != nil {
		ai := *t.AIConfig
		out.AIConfig = &ai
	}
	return &out
}
