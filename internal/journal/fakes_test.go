package journal

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keepswell/keepswell-api/internal/audit"
	"github.com/keepswell/keepswell-api/internal/identity"
	"github.com/keepswell/keepswell-api/internal/models"
	"github.com/keepswell/keepswell-api/internal/selector"
	"github.com/keepswell/keepswell-api/internal/template"
)

// memStore is an in-memory Store. WithJournalLock serializes on a single
// mutex and does not roll back.
type memStore struct {
	lock sync.Mutex

	mu       sync.Mutex
	journals map[uuid.UUID]models.Journal
	prompts  map[uuid.UUID][]models.Prompt
	sends    []models.PromptSendRecord
	seq      int
}

func newMemStore() *memStore {
	return &memStore{
		journals: make(map[uuid.UUID]models.Journal),
		prompts:  make(map[uuid.UUID][]models.Prompt),
	}
}

func copyJournal(j models.Journal) *models.Journal {
	j.CustomPromptOrder = append([]string(nil), j.CustomPromptOrder...)
	if len(j.CustomPromptOrder) == 0 {
		j.CustomPromptOrder = nil
	}
	return &j
}

func (m *memStore) GetJournal(_ context.Context, id uuid.UUID) (*models.Journal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.journals[id]
	if !ok {
		return nil, ErrJournalNotFound
	}
	return copyJournal(j), nil
}

func (m *memStore) CreateJournal(_ context.Context, j *models.Journal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	m.journals[j.ID] = *copyJournal(*j)
	return nil
}

func (m *memStore) SaveJournal(_ context.Context, j *models.Journal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.journals[j.ID]; !ok {
		return ErrJournalNotFound
	}
	j.UpdatedAt = time.Now().UTC()
	m.journals[j.ID] = *copyJournal(*j)
	return nil
}

func (m *memStore) ListSchedules(_ context.Context) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Schedule
	for _, j := range m.journals {
		if j.Status != models.JournalActive {
			continue
		}
		sc := Schedule{Journal: *copyJournal(j)}
		for i := range m.sends {
			if m.sends[i].JournalID == j.ID && (sc.LastSentAt == nil || m.sends[i].SentAt.After(*sc.LastSentAt)) {
				t := m.sends[i].SentAt
				sc.LastSentAt = &t
			}
		}
		out = append(out, sc)
	}
	return out, nil
}

func (m *memStore) ListCustomPrompts(_ context.Context, journalID uuid.UUID) ([]models.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Prompt(nil), m.prompts[journalID]...), nil
}

func (m *memStore) find(journalID, promptID uuid.UUID) int {
	for i, p := range m.prompts[journalID] {
		if p.ID == promptID.String() {
			return i
		}
	}
	return -1
}

func (m *memStore) GetCustomPrompt(_ context.Context, journalID, promptID uuid.UUID) (*models.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(journalID, promptID)
	if i < 0 {
		return nil, ErrPromptNotFound
	}
	p := m.prompts[journalID][i]
	return &p, nil
}

func (m *memStore) InsertCustomPrompt(_ context.Context, p *models.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	created := time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = &created, &created
	p.IsCustom = true
	m.prompts[*p.JournalID] = append(m.prompts[*p.JournalID], *p)
	return nil
}

func (m *memStore) UpdateCustomPrompt(_ context.Context, p *models.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(*p.JournalID, uuid.MustParse(p.ID))
	if i < 0 {
		return ErrPromptNotFound
	}
	m.prompts[*p.JournalID][i] = *p
	return nil
}

func (m *memStore) TombstoneCustomPrompt(_ context.Context, journalID, promptID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(journalID, promptID)
	if i < 0 {
		return ErrPromptNotFound
	}
	m.prompts[journalID][i].DeletedAt = &at
	return nil
}

func (m *memStore) DeleteCustomPrompt(_ context.Context, journalID, promptID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(journalID, promptID)
	if i < 0 {
		return ErrPromptNotFound
	}
	ps := m.prompts[journalID]
	m.prompts[journalID] = append(ps[:i:i], ps[i+1:]...)
	return nil
}

func (m *memStore) ListSends(_ context.Context, journalID uuid.UUID) ([]models.PromptSendRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PromptSendRecord
	for _, r := range m.sends {
		if r.JournalID == journalID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].SentAt.Before(out[b].SentAt) })
	return out, nil
}

func (m *memStore) CountSends(_ context.Context, journalID uuid.UUID, promptID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.sends {
		if r.JournalID == journalID && r.PromptID == promptID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetSend(_ context.Context, id uuid.UUID) (*models.PromptSendRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.sends {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, ErrSendNotFound
}

func (m *memStore) InsertSend(_ context.Context, rec *models.PromptSendRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, *rec)
	return nil
}

func (m *memStore) MarkResponded(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sends {
		if m.sends[i].ID == id {
			if m.sends[i].RespondedAt != nil {
				return ErrAlreadyResponded
			}
			m.sends[i].RespondedAt = &at
			return nil
		}
	}
	return ErrSendNotFound
}

func (m *memStore) WithJournalLock(ctx context.Context, id uuid.UUID, fn func(tx Store, j *models.Journal) error) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	j, err := m.GetJournal(ctx, id)
	if err != nil {
		return err
	}
	return fn(m, j)
}

// passCache never caches; it only counts invalidations.
type passCache struct {
	mu          sync.Mutex
	invalidated []uuid.UUID
}

func (c *passCache) GetOrLoad(ctx context.Context, _ uuid.UUID, load func(context.Context) (*template.ResolvedConfig, error)) (*template.ResolvedConfig, error) {
	return load(ctx)
}

func (c *passCache) Invalidate(_ context.Context, ids ...uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

type memAuditor struct {
	mu      sync.Mutex
	entries []audit.LogEntry
}

func (a *memAuditor) Record(_ context.Context, e audit.LogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *memAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

type memEvents struct {
	mu     sync.Mutex
	events []any
}

func (e *memEvents) Publish(_ context.Context, _ string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, payload)
	return nil
}

type fixture struct {
	svc     *Service
	store   *memStore
	cache   *passCache
	audit   *memAuditor
	events  *memEvents
	catalog *template.Catalog
	owner   *models.User
}

func newFixture(t *testing.T, premium bool) *fixture {
	t.Helper()
	catalog, err := template.LoadCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	f := &fixture{
		store:   newMemStore(),
		cache:   &passCache{},
		audit:   &memAuditor{},
		events:  &memEvents{},
		catalog: catalog,
		owner:   &models.User{ID: uuid.New(), Email: "owner@example.com", IsPremium: premium},
	}
	f.svc = NewService(f.store, template.NewResolver(catalog), selector.New(rand.NewPCG(7, 11)), f.cache, f.audit, f.events)
	return f
}

func (f *fixture) ctx() context.Context {
	return identity.WithUser(context.Background(), f.owner)
}

func (f *fixture) create(t *testing.T, tt models.TemplateType) *models.Journal {
	t.Helper()
	j, err := f.svc.Create(f.ctx(), CreateRequest{Title: "Rivera", TemplateType: tt, Timezone: "America/Chicago"})
	if err != nil {
		t.Fatalf("create %s journal: %v", tt, err)
	}
	return j
}

func ptr[T any](v T) *T { return &v }
