// Package leads is the caller-side layer over the lead store: it validates
// input, runs each mutation in its own transaction and records what happened.
// Both the CLI and the HTTP API go through it.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"github.com/Skryldev/lead-manager/db"
	"github.com/Skryldev/lead-manager/models"
	"github.com/Skryldev/lead-manager/repo"
)

// ─────────────────────────────────────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────────────────────────────────────

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("leads: invalid input")

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "leads: invalid input: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, rule, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Rule: rule, Message: msg}}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Service
// ─────────────────────────────────────────────────────────────────────────────

// Recorder receives business events. *metrics.Metrics implements it.
type Recorder interface {
	RecordLeadCreated()
	RecordLeadRejected(reason string)
	RecordStatusUpdate(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordLeadCreated()        {}
func (nopRecorder) RecordLeadRejected(string) {}
func (nopRecorder) RecordStatusUpdate(string) {}

// Service implements the lead operations offered to users.
type Service struct {
	db       *db.DB
	validate *validator.Validate
	logger   *slog.Logger
	recorder Recorder
	region   string
	repoOpts []repo.Option
}

// Option customises a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

// WithPhoneRegion sets the region used to parse phone numbers written without
// a country code. Defaults to "US".
func WithPhoneRegion(region string) Option {
	return func(s *Service) { s.region = strings.ToUpper(region) }
}

// WithRepoOptions passes options to every repository the service creates.
func WithRepoOptions(opts ...repo.Option) Option {
	return func(s *Service) { s.repoOpts = append(s.repoOpts, opts...) }
}

// NewService returns a Service over database.
func NewService(database *db.DB, opts ...Option) *Service {
	s := &Service{
		db:       database,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		region:   "US",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validate = newValidator(s.region)
	return s
}

func newValidator(region string) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		num, err := phonenumbers.Parse(fl.Field().String(), region)
		return err == nil && phonenumbers.IsPossibleNumber(num)
	})
	return v
}

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

// Create validates params and stores a new lead. Surrounding whitespace is
// trimmed and an empty source becomes Manual. Errors match ErrValidation,
// repo.ErrDuplicateEmail or db.ErrUnavailable; none of them leave a row behind.
func (s *Service) Create(ctx context.Context, params models.CreateLeadParams) (*models.Lead, error) {
	params.Name = strings.TrimSpace(params.Name)
	params.Email = strings.TrimSpace(params.Email)
	params.Phone = strings.TrimSpace(params.Phone)
	if params.Source == "" {
		params.Source = models.SourceManual
	}

	if err := s.validate.StructCtx(ctx, params); err != nil {
		s.recorder.RecordLeadRejected("validation")
		return nil, toValidationError(err)
	}

	var created *models.Lead
	err := s.db.ExecTx(ctx, func(tx *db.Tx) error {
		l, err := repo.NewLeadRepo(tx, s.repoOpts...).Insert(ctx, params)
		created = l
		return err
	})
	switch {
	case errors.Is(err, repo.ErrDuplicateEmail):
		s.recorder.RecordLeadRejected("duplicate")
		s.logger.InfoContext(ctx, "leads: duplicate email rejected")
		return nil, err
	case err != nil:
		s.recorder.RecordLeadRejected("error")
		s.logger.ErrorContext(ctx, "leads: create failed", slog.Any("error", err))
		return nil, fmt.Errorf("leads: create: %w", err)
	}

	s.recorder.RecordLeadCreated()
	s.logger.InfoContext(ctx, "leads: lead created",
		slog.Int64("id", created.ID),
		slog.String("source", string(created.Source)),
		slog.Int("score", created.Score),
	)
	return created, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

// List returns every lead when filter is "" or "All", otherwise only the
// leads whose status equals filter exactly.
func (s *Service) List(ctx context.Context, filter string) ([]*models.Lead, error) {
	var status *string
	if filter != "" && filter != "All" {
		status = &filter
	}
	leads, err := repo.NewLeadRepo(s.db, s.repoOpts...).List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("leads: list: %w", err)
	}
	return leads, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateStatus
// ─────────────────────────────────────────────────────────────────────────────

// UpdateStatus moves the lead with the given email to status. Any known
// status may follow any other. An unknown email yields repo.ErrLeadNotFound
// and changes nothing.
func (s *Service) UpdateStatus(ctx context.Context, email, status string) (*models.Lead, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, invalid("email", "required", "email is required")
	}
	st := models.Status(status)
	if !st.Valid() {
		return nil, invalid("status", "oneof",
			fmt.Sprintf("status must be one of New, Contacted, Qualified, Closed; got %q", status))
	}

	var updated *models.Lead
	err := s.db.ExecTx(ctx, func(tx *db.Tx) error {
		l, err := repo.NewLeadRepo(tx, s.repoOpts...).UpdateStatus(ctx, email, st)
		updated = l
		return err
	})
	if errors.Is(err, repo.ErrLeadNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("leads: update status: %w", err)
	}

	s.recorder.RecordStatusUpdate(string(st))
	s.logger.InfoContext(ctx, "leads: status updated",
		slog.Int64("id", updated.ID),
		slog.String("status", string(st)),
	)
	return updated, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Summary
// ─────────────────────────────────────────────────────────────────────────────

// Summary is the dashboard view of the table.
type Summary struct {
	Total    int64                   `json:"total"`
	ByStatus map[models.Status]int64 `json:"by_status"`
}

// Summary counts all leads and the leads per status. Every known status is
// present in ByStatus, with zero when no lead has it.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{ByStatus: make(map[models.Status]int64, len(models.Statuses))}
	err := s.db.ExecTx(ctx, func(tx *db.Tx) error {
		r := repo.NewLeadRepo(tx, s.repoOpts...)
		total, err := r.Count(ctx)
		if err != nil {
			return err
		}
		counts, err := r.CountByStatus(ctx)
		if err != nil {
			return err
		}
		sum.Total = total
		for _, st := range models.Statuses {
			sum.ByStatus[st] = 0
		}
		for st, n := range counts {
			sum.ByStatus[st] = n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("leads: summary: %w", err)
	}
	return sum, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation messages
// ─────────────────────────────────────────────────────────────────────────────

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("leads: validate: %w", err)
	}
	ve := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return ve
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "phone":
		return fe.Field() + " must be a valid phone number"
	case "oneof":
		return fe.Field() + " must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
