package template

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/models"
)

func ptr[T any](v T) *T { return &v }

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}

func newJournal(tt models.TemplateType) *models.Journal {
	return &models.Journal{
		ID:              uuid.New(),
		OwnerID:         uuid.New(),
		Title:           "Rivera",
		TemplateType:    tt,
		Status:          models.JournalActive,
		PromptFrequency: models.FrequencyWeekly,
		PromptDayOfWeek: ptr(0),
		PromptTime:      "10:00",
		Timezone:        "America/Chicago",
	}
}

func TestLoadCatalog(t *testing.T) {
	c := mustCatalog(t)

	all := c.All()
	if len(all) != len(models.TemplateTypes) {
		t.Fatalf("got %d templates, want %d", len(all), len(models.TemplateTypes))
	}
	for i, tt := range models.TemplateTypes {
		if all[i].Type != tt {
			t.Errorf("template %d: got type %s, want %s", i, all[i].Type, tt)
		}
	}

	custom, err := c.ByType(models.TemplateCustom)
	if err != nil {
		t.Fatalf("custom template: %v", err)
	}
	if custom.IsPremium {
		t.Error("custom template must not be premium")
	}
	for _, tt := range []models.TemplateType{models.TemplateRomantic, models.TemplateVacation} {
		tmpl, _ := c.ByType(tt)
		if !tmpl.IsPremium {
			t.Errorf("%s should be premium", tt)
		}
	}

	if _, ok := c.Prompt("fam-001"); !ok {
		t.Error("expected fam-001 in prompt index")
	}
}

func TestCatalogReturnsCopies(t *testing.T) {
	c := mustCatalog(t)
	a, _ := c.ByType(models.TemplateFamily)
	a.VisualRules.Decorations[0] = "mutated"
	a.PromptPack.Prompts[0].Text = "mutated"

	b, _ := c.ByType(models.TemplateFamily)
	if b.VisualRules.Decorations[0] == "mutated" || b.PromptPack.Prompts[0].Text == "mutated" {
		t.Fatal("catalog handed out shared state")
	}
}

func TestNewCatalogRejectsBadData(t *testing.T) {
	base := mustCatalog(t).All()

	tests := []struct {
		name   string
		mutate func([]models.Template) []models.Template
	}{
		{"missing type", func(ts []models.Template) []models.Template { return ts[:4] }},
		{"duplicate type", func(ts []models.Template) []models.Template {
			dup := ts[0]
			dup.ID = "other"
			return append(ts, dup)
		}},
		{"premium custom", func(ts []models.Template) []models.Template {
			ts[4].IsPremium = true
			return ts
		}},
		{"bad category", func(ts []models.Template) []models.Template {
			ts[0].PromptPack.Prompts[0].Category = "gossip"
			return ts
		}},
		{"duplicate prompt id", func(ts []models.Template) []models.Template {
			ts[1].PromptPack.Prompts[0].ID = ts[0].PromptPack.Prompts[0].ID
			return ts
		}},
		{"daily with day of week", func(ts []models.Template) []models.Template {
			ts[0].CadenceConfig.DefaultFrequency = models.FrequencyDaily
			return ts
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := make([]models.Template, len(base))
			for i := range base {
				ts[i] = *cloneTemplate(base[i])
			}
			if _, err := NewCatalog(tc.mutate(ts)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r := NewResolver(mustCatalog(t))
	j := newJournal(models.TemplateFamily)
	j.VisualRulesOverride = &models.VisualRulesPatch{FontFamily: ptr("modern"), Decorations: []string{"stars"}}
	j.CadenceConfigOverride = &models.CadenceConfigPatch{DefaultTime: ptr("08:15")}
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	custom := []models.Prompt{{ID: "c1", Text: "Hi", Category: models.CategoryCustom, IsCustom: true, CreatedAt: &created}}

	a, err := r.Resolve(j, custom)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, err := r.Resolve(j, custom)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("resolving twice produced different configs")
	}
}

func TestResolveMergesPerField(t *testing.T) {
	c := mustCatalog(t)
	tmpl, _ := c.ByType(models.TemplateFamily)
	j := newJournal(models.TemplateFamily)
	j.VisualRulesOverride = &models.VisualRulesPatch{
		PrimaryColor: ptr("#000000"),
		Decorations:  []string{},
	}
	j.FramingRulesOverride = &models.FramingRulesPatch{GroupBy: ptr("month"), ShowAuthor: ptr(false)}

	rc, err := Resolve(j, tmpl, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if rc.VisualRules.PrimaryColor != "#000000" {
		t.Errorf("primary color: got %s", rc.VisualRules.PrimaryColor)
	}
	if rc.VisualRules.AccentColor != tmpl.VisualRules.AccentColor {
		t.Errorf("accent color should come from template, got %s", rc.VisualRules.AccentColor)
	}
	if rc.VisualRules.FontFamily != tmpl.VisualRules.FontFamily {
		t.Errorf("font family should come from template, got %s", rc.VisualRules.FontFamily)
	}
	if rc.VisualRules.Decorations == nil || len(rc.VisualRules.Decorations) != 0 {
		t.Errorf("empty decorations override should replace wholesale, got %v", rc.VisualRules.Decorations)
	}
	if rc.FramingRules.GroupBy != "month" || rc.FramingRules.ShowAuthor {
		t.Errorf("framing overrides not applied: %+v", rc.FramingRules)
	}
	if rc.FramingRules.Tone != tmpl.FramingRules.Tone {
		t.Errorf("tone should come from template, got %s", rc.FramingRules.Tone)
	}
	if !reflect.DeepEqual(rc.CadenceConfig, tmpl.CadenceConfig) {
		t.Errorf("cadence should equal template: %+v", rc.CadenceConfig)
	}

	want := []string{"visual_rules.primary_color", "visual_rules.decorations", "framing_rules.group_by", "framing_rules.show_author"}
	if !reflect.DeepEqual(rc.Overrides, want) {
		t.Errorf("overrides: got %v, want %v", rc.Overrides, want)
	}
}

func TestResolveDoesNotAliasTemplate(t *testing.T) {
	c := mustCatalog(t)
	tmpl, _ := c.ByType(models.TemplateFamily)
	rc, err := Resolve(newJournal(models.TemplateFamily), tmpl, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rc.VisualRules.Decorations[0] = "changed"
	if tmpl.VisualRules.Decorations[0] == "changed" {
		t.Fatal("resolved config shares slices with the template")
	}
}

func TestMergeCadenceDailyClearsDay(t *testing.T) {
	base := models.CadenceConfig{DefaultFrequency: models.FrequencyWeekly, DefaultDayOfWeek: ptr(2), DefaultTime: "10:00"}
	got := MergeCadence(base, &models.CadenceConfigPatch{DefaultFrequency: ptr(models.FrequencyDaily)})
	if got.DefaultDayOfWeek != nil {
		t.Fatalf("daily cadence kept day of week %d", *got.DefaultDayOfWeek)
	}
	if base.DefaultDayOfWeek == nil || *base.DefaultDayOfWeek != 2 {
		t.Fatal("base cadence was modified")
	}
}

func TestResolvePremiumGating(t *testing.T) {
	r := NewResolver(mustCatalog(t))

	j := newJournal(models.TemplateRomantic)
	_, err := r.Resolve(j, nil)
	var pre *PremiumRequiredError
	if !errors.As(err, &pre) {
		t.Fatalf("expected PremiumRequiredError, got %v", err)
	}

	j.IsPremium = true
	rc, err := r.Resolve(j, nil)
	if err != nil {
		t.Fatalf("premium journal: %v", err)
	}
	if rc.AIConfig == nil || !rc.AIConfig.Enabled {
		t.Error("premium journal should see ai config")
	}

	free, err := r.Resolve(newJournal(models.TemplateFamily), nil)
	if err != nil {
		t.Fatalf("family: %v", err)
	}
	if free.AIConfig != nil {
		t.Error("non-premium journal must not see ai config")
	}
}

func TestResolveUnknownTemplate(t *testing.T) {
	r := NewResolver(mustCatalog(t))
	_, err := r.Resolve(newJournal("scrapbook"), nil)
	var nf *TemplateNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected TemplateNotFoundError, got %v", err)
	}

	tmpl, _ := mustCatalog(t).ByType(models.TemplateFamily)
	_, err = Resolve(newJournal(models.TemplateFriends), tmpl, nil)
	if !errors.As(err, &nf) {
		t.Fatalf("mismatched template: expected TemplateNotFoundError, got %v", err)
	}
}

func TestPromptPool(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	gone := t2.Add(time.Hour)
	system := []models.Prompt{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}}
	custom := []models.Prompt{
		{ID: "c2", IsCustom: true, CreatedAt: &t2},
		{ID: "c1", IsCustom: true, CreatedAt: &t1},
		{ID: "dead", IsCustom: true, CreatedAt: &t1, DeletedAt: &gone},
	}

	tests := []struct {
		name  string
		order []string
		want  []string
	}{
		{"default order", nil, []string{"s1", "s2", "s3", "c1", "c2"}},
		{"custom order", []string{"c2", "s3", "s1", "c1", "s2"}, []string{"c2", "s3", "s1", "c1", "s2"}},
		{"partial order keeps the rest", []string{"s3"}, []string{"s3", "s1", "s2", "c1", "c2"}},
		{"tombstoned id in order is skipped", []string{"dead", "s2"}, []string{"s2", "s1", "s3", "c1", "c2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			for _, p := range PromptPool(system, custom, tc.order) {
				got = append(got, p.ID)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
