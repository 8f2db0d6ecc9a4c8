package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Skryldev/lead-manager/db"
	"github.com/Skryldev/lead-manager/models"
)

var (
	// ErrDuplicateEmail is returned by Insert when the email is already taken.
	// The returned error also matches db.ErrDuplicateKey.
	ErrDuplicateEmail = errors.New("repo/lead: email already exists")

	// ErrLeadNotFound is returned when no lead has the given email.
	// The returned error also matches db.ErrNotFound.
	ErrLeadNotFound = errors.New("repo/lead: lead not found")
)

// ─────────────────────────────────────────────────────────────────────────────
// LeadRepository interface, mockable in tests
// ─────────────────────────────────────────────────────────────────────────────

// LeadRepository is the persistence contract of the lead store. It performs
// no input validation: names, scores and sources are stored as given.
type LeadRepository interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, params models.CreateLeadParams) (*models.Lead, error)
	List(ctx context.Context, status *string) ([]*models.Lead, error)
	UpdateStatus(ctx context.Context, email string, status models.Status) (*models.Lead, error)
	DeleteAll(ctx context.Context) (int64, error)
	GetByEmail(ctx context.Context, email string) (*models.Lead, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// leadRepo: concrete implementation
// ─────────────────────────────────────────────────────────────────────────────

type leadRepo struct {
	q   db.Querier
	now func() time.Time
}

// Option customises a repository.
type Option func(*leadRepo)

// WithNow replaces the clock used to stamp last_contact.
func WithNow(now func() time.Time) Option {
	return func(r *leadRepo) { r.now = now }
}

// NewLeadRepo returns a LeadRepository backed by q.
// q can be a *db.DB or a *db.Tx; both satisfy db.Querier.
func NewLeadRepo(q db.Querier, opts ...Option) LeadRepository {
	r := &leadRepo{q: q, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// SQL constants: '?' placeholders are rebound per driver by the db package
// ─────────────────────────────────────────────────────────────────────────────

const (
	sqlCreateLeads = `
		CREATE TABLE IF NOT EXISTS leads (
			id           %s,
			name         VARCHAR(255) NOT NULL,
			email        VARCHAR(320) NOT NULL UNIQUE,
			phone        VARCHAR(64),
			source       VARCHAR(32),
			status       VARCHAR(32) NOT NULL DEFAULT 'New',
			score        INTEGER NOT NULL DEFAULT 0,
			last_contact DATE,
			notes        TEXT
		)`

	sqlInsertLead = `
		INSERT INTO leads (name, email, phone, source, status, score, last_contact, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectLeads = `
		SELECT id, name, email,
		       COALESCE(phone, '')  AS phone,
		       COALESCE(source, '') AS source,
		       COALESCE(status, '') AS status,
		       COALESCE(score, 0)   AS score,
		       last_contact,
		       COALESCE(notes, '')  AS notes
		FROM   leads`

	sqlListLeads         = sqlSelectLeads + ` ORDER BY id`
	sqlListLeadsByStatus = sqlSelectLeads + ` WHERE status = ? ORDER BY id`
	sqlGetLeadByEmail    = sqlSelectLeads + ` WHERE email = ?`

	sqlUpdateLeadStatus = `
		UPDATE leads SET status = ? WHERE email = ?`

	sqlDeleteAllLeads = `
		DELETE FROM leads`

	sqlCountLeads = `
		SELECT COUNT(*) FROM leads`

	sqlCountLeadsByStatus = `
		SELECT COALESCE(status, '') AS status, COUNT(*) AS n
		FROM   leads
		GROUP  BY status`
)

// ─────────────────────────────────────────────────────────────────────────────
// EnsureSchema
// ─────────────────────────────────────────────────────────────────────────────

// EnsureSchema creates the leads table when it does not exist yet. It is safe
// to call on every start and from concurrent processes.
func (r *leadRepo) EnsureSchema(ctx context.Context) error {
	drv, err := db.LookupDriver(r.q.DriverName())
	if err != nil {
		return fmt.Errorf("repo/lead: ensure schema: %w", err)
	}
	_, err = r.q.Exec(ctx, fmt.Sprintf(sqlCreateLeads, drv.AutoIncrementPK()))
	// PostgreSQL reports a lost catalog race between two concurrent
	// CREATE TABLE IF NOT EXISTS as a unique violation.
	if err != nil && !db.IsDuplicateKey(err) {
		return fmt.Errorf("repo/lead: ensure schema: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Insert
// ─────────────────────────────────────────────────────────────────────────────

// Insert stores a new lead with status New and last_contact set to today,
// then reads the row back. The UNIQUE constraint on email is the only
// uniqueness check, so a rejected insert never leaves a partial row.
//
// Run it inside db.ExecTx when the read-back must see exactly this insert.
func (r *leadRepo) Insert(ctx context.Context, params models.CreateLeadParams) (*models.Lead, error) {
	_, err := r.q.Exec(ctx, sqlInsertLead,
		params.Name,
		params.Email,
		params.Phone,
		string(params.Source),
		string(models.StatusNew),
		params.Score,
		models.NewDate(r.now().UTC()),
		params.Notes,
	)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return nil, fmt.Errorf("%w: %q: %w", ErrDuplicateEmail, params.Email, err)
		}
		return nil, fmt.Errorf("repo/lead: insert: %w", err)
	}
	return r.GetByEmail(ctx, params.Email)
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

// List returns every lead in id order, or only those whose status equals
// *status exactly (case-sensitive) when status is non-nil.
func (r *leadRepo) List(ctx context.Context, status *string) ([]*models.Lead, error) {
	if status == nil {
		return r.selectLeads(ctx, sqlListLeads)
	}
	return r.selectLeads(ctx, sqlListLeadsByStatus, *status)
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateStatus
// ─────────────────────────────────────────────────────────────────────────────

// UpdateStatus sets the status of the lead with the given email and returns
// the updated row. Nothing is written when no lead matches.
func (r *leadRepo) UpdateStatus(ctx context.Context, email string, status models.Status) (*models.Lead, error) {
	res, err := r.q.Exec(ctx, sqlUpdateLeadStatus, string(status), email)
	if err != nil {
		return nil, fmt.Errorf("repo/lead: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("repo/lead: update status: %w", err)
	}
	if n == 0 {
		return nil, notFound(email)
	}
	return r.GetByEmail(ctx, email)
}

// ─────────────────────────────────────────────────────────────────────────────
// DeleteAll
// ─────────────────────────────────────────────────────────────────────────────

// DeleteAll irreversibly removes every lead and reports how many were removed.
func (r *leadRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.q.Exec(ctx, sqlDeleteAllLeads)
	if err != nil {
		return 0, fmt.Errorf("repo/lead: delete all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repo/lead: delete all: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetByEmail looks up a lead by its unique email address.
func (r *leadRepo) GetByEmail(ctx context.Context, email string) (*models.Lead, error) {
	leads, err := r.selectLeads(ctx, sqlGetLeadByEmail, email)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, notFound(email)
	}
	return leads[0], nil
}

// Count returns the total number of leads.
func (r *leadRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountLeads).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo/lead: count: %w", err)
	}
	return n, nil
}

// CountByStatus returns the number of leads per stored status value.
// Statuses without leads are absent from the map.
func (r *leadRepo) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := r.q.Query(ctx, sqlCountLeadsByStatus)
	if err != nil {
		return nil, fmt.Errorf("repo/lead: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("repo/lead: count by status: scan: %w", err)
		}
		counts[models.Status(status)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo/lead: count by status: %w", err)
	}
	return counts, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// selectLeads: centralised column mapping
// ─────────────────────────────────────────────────────────────────────────────

// selectLeads maps rows onto models.Lead through the struct's db tags, so a
// column change only touches sqlSelectLeads and the model.
func (r *leadRepo) selectLeads(ctx context.Context, query string, args ...any) ([]*models.Lead, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repo/lead: query: %w", err)
	}
	defer rows.Close()

	leads := make([]*models.Lead, 0)
	if err := sqlx.StructScan(rows, &leads); err != nil {
		return nil, fmt.Errorf("repo/lead: scan: %w", err)
	}
	return leads, nil
}

func notFound(email string) error {
	return fmt.Errorf("%w: %q: %w", ErrLeadNotFound, email, db.ErrNotFound)
}

var _ LeadRepository = (*leadRepo)(nil)
