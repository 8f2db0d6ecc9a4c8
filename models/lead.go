package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the pipeline stage of a lead. Transitions are unconstrained.
type Status string

const (
	StatusNew       Status = "New"
	StatusContacted Status = "Contacted"
	StatusQualified Status = "Qualified"
	StatusClosed    Status = "Closed"
)

// Statuses lists every pipeline stage in display order.
var Statuses = []Status{StatusNew, StatusContacted, StatusQualified, StatusClosed}

// Valid reports whether s is one of the four known stages.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Source records where a lead came from.
type Source string

const (
	SourceManual    Source = "Manual"
	SourceLinkedIn  Source = "LinkedIn"
	SourceWebsite   Source = "Website"
	SourceInstagram Source = "Instagram"
)

// Sources lists every accepted source.
var Sources = []Source{SourceManual, SourceLinkedIn, SourceWebsite, SourceInstagram}

// Lead represents a row in the "leads" table.
// Fields map 1-to-1 with columns; nullable text columns are read as "".
type Lead struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Email       string `db:"email" json:"email"`
	Phone       string `db:"phone" json:"phone"`
	Source      Source `db:"source" json:"source"`
	Status      Status `db:"status" json:"status"`
	Score       int    `db:"score" json:"score"`
	LastContact Date   `db:"last_contact" json:"last_contact"`
	Notes       string `db:"notes" json:"notes"`
}

// CreateLeadParams holds the caller-supplied fields of a new lead. Status and
// last_contact are not part of it: the store always sets them itself.
type CreateLeadParams struct {
	Name   string `json:"name" validate:"required,max=255"`
	Email  string `json:"email" validate:"required,email,max=320"`
	Phone  string `json:"phone" validate:"omitempty,max=64,phone"`
	Source Source `json:"source" validate:"required,oneof=Manual LinkedIn Website Instagram"`
	Score  int    `json:"score" validate:"min=0,max=100"`
	Notes  string `json:"notes"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Date
// ─────────────────────────────────────────────────────────────────────────────

// DateLayout is the calendar-date format used in storage, JSON and exports.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day. Drivers disagree on how a DATE
// column comes back (time.Time, string or []byte), so Scan accepts all three.
type Date struct {
	time.Time
}

// NewDate keeps t's calendar date in its own location and drops the rest.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Equal compares calendar dates only.
func (d Date) Equal(other Date) bool { return d.String() == other.String() }

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v)
		return nil
	case string:
		return d.parseColumn(v)
	case []byte:
		return d.parseColumn(string(v))
	default:
		return fmt.Errorf("models: cannot scan %T into Date", src)
	}
}

func (d *Date) parseColumn(s string) error {
	if s == "" {
		*d = Date{}
		return nil
	}
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("models: scan date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Format(DateLayout), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
