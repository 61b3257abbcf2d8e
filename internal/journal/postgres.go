package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keepswell/keepswell-api/internal/models"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

const journalColumns = `id, owner_id, title, template_type, status, is_premium, prompt_frequency,
	prompt_day_of_week, prompt_time, timezone, custom_prompt_order,
	visual_rules_override, framing_rules_override, cadence_config_override, created_at, updated_at`

func scanJournal(row pgx.Row) (*models.Journal, error) {
	var j models.Journal
	var visual, framing, cadence []byte
	err := row.Scan(&j.ID, &j.OwnerID, &j.Title, &j.TemplateType, &j.Status, &j.IsPremium, &j.PromptFrequency,
		&j.PromptDayOfWeek, &j.PromptTime, &j.Timezone, &j.CustomPromptOrder,
		&visual, &framing, &cadence, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalPatch(visual, &j.VisualRulesOverride); err != nil {
		return nil, fmt.Errorf("decode visual_rules_override: %w", err)
	}
	if err := unmarshalPatch(framing, &j.FramingRulesOverride); err != nil {
		return nil, fmt.Errorf("decode framing_rules_override: %w", err)
	}
	if err := unmarshalPatch(cadence, &j.CadenceConfigOverride); err != nil {
		return nil, fmt.Errorf("decode cadence_config_override: %w", err)
	}
	return &j, nil
}

func unmarshalPatch[T any](data []byte, dst **T) error {
	if len(data) == 0 || string(data) == "null" {
		*dst = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

// marshalPatch stores empty patches as NULL.
func marshalPatch(p interface{ IsZero() bool }) ([]byte, error) {
	if p.IsZero() {
		return nil, nil
	}
	return json.Marshal(p)
}

func (s *PostgresStore) GetJournal(ctx context.Context, id uuid.UUID) (*models.Journal, error) {
	j, err := scanJournal(s.q.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJournalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get journal: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) CreateJournal(ctx context.Context, j *models.Journal) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	err := s.q.QueryRow(ctx,
		`INSERT INTO journals (id, owner_id, title, template_type, status, is_premium, prompt_frequency,
		                       prompt_day_of_week, prompt_time, timezone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		j.ID, j.OwnerID, j.Title, j.TemplateType, j.Status, j.IsPremium, j.PromptFrequency,
		j.PromptDayOfWeek, j.PromptTime, j.Timezone,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert journal: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveJournal(ctx context.Context, j *models.Journal) error {
	visual, err := marshalPatch(j.VisualRulesOverride)
	if err != nil {
		return fmt.Errorf("encode visual_rules_override: %w", err)
	}
	framing, err := marshalPatch(j.FramingRulesOverride)
	if err != nil {
		return fmt.Errorf("encode framing_rules_override: %w", err)
	}
	cadence, err := marshalPatch(j.CadenceConfigOverride)
	if err != nil {
		return fmt.Errorf("encode cadence_config_override: %w", err)
	}

	var order []string
	if len(j.CustomPromptOrder) > 0 {
		order = j.CustomPromptOrder
	}

	err = s.q.QueryRow(ctx,
		`UPDATE journals SET title = $2, status = $3, prompt_frequency = $4, prompt_day_of_week = $5,
		        prompt_time = $6, timezone = $7, custom_prompt_order = $8,
		        visual_rules_override = $9, framing_rules_override = $10, cadence_config_override = $11,
		        updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		j.ID, j.Title, j.Status, j.PromptFrequency, j.PromptDayOfWeek, j.PromptTime, j.Timezone, order,
		visual, framing, cadence,
	).Scan(&j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJournalNotFound
	}
	if err != nil {
		return fmt.Errorf("update journal: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+journalColumns+`,
		        (SELECT max(sent_at) FROM prompt_sends ps WHERE ps.journal_id = journals.id)
		 FROM journals WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var sc Schedule
		var visual, framing, cadence []byte
		j := &sc.Journal
		if err := rows.Scan(&j.ID, &j.OwnerID, &j.Title, &j.TemplateType, &j.Status, &j.IsPremium, &j.PromptFrequency,
			&j.PromptDayOfWeek, &j.PromptTime, &j.Timezone, &j.CustomPromptOrder,
			&visual, &framing, &cadence, &j.CreatedAt, &j.UpdatedAt, &sc.LastSentAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

const promptColumns = `id::text, journal_id, text, category, weight, is_starter, is_deep, requires_photo,
	created_at, updated_at, deleted_at`

func scanPrompt(row pgx.Row) (*models.Prompt, error) {
	p := models.Prompt{IsCustom: true}
	err := row.Scan(&p.ID, &p.JournalID, &p.Text, &p.Category, &p.Weight, &p.IsStarter, &p.IsDeep, &p.RequiresPhoto,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListCustomPrompts returns the journal's custom prompts, tombstoned ones
// included, in creation order.
func (s *PostgresStore) ListCustomPrompts(ctx context.Context, journalID uuid.UUID) ([]models.Prompt, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+promptColumns+` FROM custom_prompts WHERE journal_id = $1 ORDER BY created_at, id`, journalID)
	if err != nil {
		return nil, fmt.Errorf("query custom prompts: %w", err)
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan custom prompt: %w", err)
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

func (s *PostgresStore) GetCustomPrompt(ctx context.Context, journalID, promptID uuid.UUID) (*models.Prompt, error) {
	p, err := scanPrompt(s.q.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM custom_prompts WHERE journal_id = $1 AND id = $2`, journalID, promptID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPromptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get custom prompt: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) InsertCustomPrompt(ctx context.Context, p *models.Prompt) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO custom_prompts (journal_id, text, category, weight, is_starter, is_deep, requires_photo)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id::text, created_at, updated_at`,
		p.JournalID, p.Text, p.Category, p.Weight, p.IsStarter, p.IsDeep, p.RequiresPhoto,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert custom prompt: %w", err)
	}
	p.IsCustom = true
	return nil
}

func (s *PostgresStore) UpdateCustomPrompt(ctx context.Context, p *models.Prompt) error {
	err := s.q.QueryRow(ctx,
		`UPDATE custom_prompts SET text = $3, category = $4, weight = $5, is_starter = $6, is_deep = $7,
		        requires_photo = $8, updated_at = now()
		 WHERE journal_id = $1 AND id = $2::uuid AND deleted_at IS NULL
		 RETURNING updated_at`,
		p.JournalID, p.ID, p.Text, p.Category, p.Weight, p.IsStarter, p.IsDeep, p.RequiresPhoto,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPromptNotFound
	}
	if err != nil {
		return fmt.Errorf("update custom prompt: %w", err)
	}
	return nil
}

func (s *PostgresStore) TombstoneCustomPrompt(ctx context.Context, journalID, promptID uuid.UUID, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE custom_prompts SET deleted_at = $3, updated_at = $3
		 WHERE journal_id = $1 AND id = $2 AND deleted_at IS NULL`,
		journalID, promptID, at)
	if err != nil {
		return fmt.Errorf("tombstone custom prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromptNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteCustomPrompt(ctx context.Context, journalID, promptID uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM custom_prompts WHERE journal_id = $1 AND id = $2`, journalID, promptID)
	if err != nil {
		return fmt.Errorf("delete custom prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPromptNotFound
	}
	return nil
}

const sendColumns = `id, journal_id, prompt_id, participant_id, sent_at, responded_at`

// ListSends returns the journal's send log, oldest first.
func (s *PostgresStore) ListSends(ctx context.Context, journalID uuid.UUID) ([]models.PromptSendRecord, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+sendColumns+` FROM prompt_sends WHERE journal_id = $1 ORDER BY sent_at, id`, journalID)
	if err != nil {
		return nil, fmt.Errorf("query sends: %w", err)
	}
	defer rows.Close()

	var sends []models.PromptSendRecord
	for rows.Next() {
		var r models.PromptSendRecord
		if err := rows.Scan(&r.ID, &r.JournalID, &r.PromptID, &r.ParticipantID, &r.SentAt, &r.RespondedAt); err != nil {
			return nil, fmt.Errorf("scan send: %w", err)
		}
		sends = append(sends, r)
	}
	return sends, rows.Err()
}

func (s *PostgresStore) CountSends(ctx context.Context, journalID uuid.UUID, promptID string) (int, error) {
	var n int
	err := s.q.QueryRow(ctx,
		`SELECT count(*) FROM prompt_sends WHERE journal_id = $1 AND prompt_id = $2`, journalID, promptID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sends: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetSend(ctx context.Context, id uuid.UUID) (*models.PromptSendRecord, error) {
	var r models.PromptSendRecord
	err := s.q.QueryRow(ctx, `SELECT `+sendColumns+` FROM prompt_sends WHERE id = $1`, id).
		Scan(&r.ID, &r.JournalID, &r.PromptID, &r.ParticipantID, &r.SentAt, &r.RespondedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSendNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get send: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) InsertSend(ctx context.Context, rec *models.PromptSendRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO prompt_sends (id, journal_id, prompt_id, participant_id, sent_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.JournalID, rec.PromptID, rec.ParticipantID, rec.SentAt)
	if err != nil {
		return fmt.Errorf("insert send: %w", err)
	}
	return nil
}

// MarkResponded sets responded_at once; a second call is rejected.
func (s *PostgresStore) MarkResponded(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE prompt_sends SET responded_at = $2 WHERE id = $1 AND responded_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark responded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResponded
	}
	return nil
}

func (s *PostgresStore) WithJournalLock(ctx context.Context, id uuid.UUID, fn func(tx Store, j *models.Journal) error) error {
	if s.pool == nil {
		return errors.New("journal lock requested inside a transaction")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	j, err := scanJournal(tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJournalNotFound
	}
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}

	if err := fn(&PostgresStore{q: tx}, j); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
