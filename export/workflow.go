package export

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/lead-manager/db"
	"github.com/Skryldev/lead-manager/models"
	"github.com/Skryldev/lead-manager/repo"
)

var (
	// ErrNoSnapshot is returned when erase is requested before any export.
	ErrNoSnapshot = errors.New("export: no pending snapshot")

	// ErrTokenMismatch is returned when the token does not belong to the
	// pending snapshot, e.g. because a newer export replaced it.
	ErrTokenMismatch = errors.New("export: token does not match the pending snapshot")

	// ErrNotDelivered is returned when the snapshot was taken but its bytes
	// were never handed off successfully.
	ErrNotDelivered = errors.New("export: snapshot has not been delivered")

	// ErrSnapshotStale is returned when leads changed between the export and
	// the erase. The pending snapshot is discarded; export again.
	ErrSnapshotStale = errors.New("export: leads changed since the snapshot was taken")
)

// Recorder receives workflow events. The metrics package implements it.
type Recorder interface {
	ExportCreated(format string)
	LeadsErased(n int64)
}

// Snapshot is one serialized copy of the whole lead table.
type Snapshot struct {
	Token   string
	Format  Format
	Data    []byte
	Rows    int
	TakenAt time.Time
}

type pending struct {
	Snapshot
	digest    [sha256.Size]byte
	delivered bool
}

// Workflow sequences export and erase so that the table can only be erased
// right after a copy of exactly its current content was handed to the user:
//
//	snap, _ := wf.Snapshot(ctx, export.FormatCSV)  // taken
//	_ = wf.Handoff(snap.Token, writeFile)          // ready
//	n, _ := wf.Confirm(ctx, snap.Token)            // erased
//
// Only one snapshot is pending at a time; a new Snapshot replaces it and
// never touches the store. A successful hand-off means the writer accepted
// the bytes, not that a person looked at them, which is why erasing still
// needs the explicit Confirm.
type Workflow struct {
	db       *db.DB
	logger   *slog.Logger
	recorder Recorder
	newToken func() string
	now      func() time.Time

	mu      sync.Mutex
	pending *pending
}

// Option customises a Workflow.
type Option func(*Workflow)

func WithLogger(l *slog.Logger) Option { return func(w *Workflow) { w.logger = l } }

func WithRecorder(r Recorder) Option { return func(w *Workflow) { w.recorder = r } }

// WithTokenGenerator replaces the random UUID tokens.
func WithTokenGenerator(gen func() string) Option { return func(w *Workflow) { w.newToken = gen } }

func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }

// NewWorkflow returns an idle workflow over database.
func NewWorkflow(database *db.DB, opts ...Option) *Workflow {
	w := &Workflow{
		db:       database,
		logger:   slog.Default(),
		newToken: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot reads every lead once, encodes them in format and makes the result
// the pending snapshot under a fresh token.
func (w *Workflow) Snapshot(ctx context.Context, format Format) (*Snapshot, error) {
	leads, err := repo.NewLeadRepo(w.db).List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("export: snapshot: %w", err)
	}
	digest, err := fingerprint(leads)
	if err != nil {
		return nil, err
	}
	data, err := Encode(leads, format)
	if err != nil {
		return nil, err
	}

	p := &pending{
		Snapshot: Snapshot{
			Token:   w.newToken(),
			Format:  format,
			Data:    data,
			Rows:    len(leads),
			TakenAt: w.now(),
		},
		digest: digest,
	}

	w.mu.Lock()
	replaced := w.pending != nil
	w.pending = p
	w.mu.Unlock()

	if w.recorder != nil {
		w.recorder.ExportCreated(string(format))
	}
	w.logger.InfoContext(ctx, "export: snapshot taken",
		slog.String("format", string(format)),
		slog.Int("rows", p.Rows),
		slog.Bool("replaced_pending", replaced),
	)
	snap := p.Snapshot
	return &snap, nil
}

// Handoff passes the pending snapshot's bytes to deliver. Only when deliver
// returns nil does the snapshot become eligible for Confirm; a failed
// delivery can be retried with the same token. deliver runs without the
// workflow lock held, so a slow reader never blocks other snapshots.
func (w *Workflow) Handoff(token string, deliver func([]byte) error) error {
	w.mu.Lock()
	p, err := w.lookup(token)
	w.mu.Unlock()
	if err != nil {
		return err
	}

	if err := deliver(p.Data); err != nil {
		return fmt.Errorf("export: deliver: %w", err)
	}

	w.mu.Lock()
	p.delivered = true
	w.mu.Unlock()
	return nil
}

// Confirm erases every lead, provided the token names the pending snapshot,
// that snapshot was delivered, and the table still holds exactly what the
// snapshot captured. The check and the erase run in one transaction.
// It returns the number of leads removed.
func (w *Workflow) Confirm(ctx context.Context, token string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, err := w.lookup(token)
	if err != nil {
		return 0, err
	}
	if !p.delivered {
		return 0, ErrNotDelivered
	}

	var erased int64
	err = w.db.ExecTx(ctx, func(tx *db.Tx) error {
		r := repo.NewLeadRepo(tx)
		current, err := r.List(ctx, nil)
		if err != nil {
			return err
		}
		digest, err := fingerprint(current)
		if err != nil {
			return err
		}
		if digest != p.digest {
			return ErrSnapshotStale
		}
		erased, err = r.DeleteAll(ctx)
		return err
	})
	if errors.Is(err, ErrSnapshotStale) {
		w.pending = nil
		w.logger.WarnContext(ctx, "export: erase refused, leads changed since snapshot")
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("export: erase: %w", err)
	}

	w.pending = nil
	if w.recorder != nil {
		w.recorder.LeadsErased(erased)
	}
	w.logger.InfoContext(ctx, "export: leads erased", slog.Int64("count", erased))
	return erased, nil
}

// lookup must be called with mu held.
func (w *Workflow) lookup(token string) (*pending, error) {
	if w.pending == nil {
		return nil, ErrNoSnapshot
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(w.pending.Token)) != 1 {
		return nil, ErrTokenMismatch
	}
	return w.pending, nil
}

// fingerprint hashes the CSV rendering, which covers every column of every
// row regardless of the format that was delivered.
func fingerprint(leads []*models.Lead) ([sha256.Size]byte, error) {
	data, err := EncodeCSV(leads)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// ToWriter returns a deliver func for Handoff that writes the snapshot to dst.
func ToWriter(dst io.Writer) func([]byte) error {
	return func(data []byte) error {
		_, err := dst.Write(data)
		return err
	}
}
