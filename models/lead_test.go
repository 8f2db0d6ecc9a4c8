package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Skryldev/lead-manager/models"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range models.Statuses {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	for _, s := range []models.Status{"", "new", "Won", "All"} {
		if s.Valid() {
			t.Fatalf("%q should not be valid", s)
		}
	}
}

func TestDate_Scan(t *testing.T) {
	cases := []struct {
		name string
		src  any
		want string
	}{
		{"nil", nil, ""},
		{"time", time.Date(2026, time.May, 2, 23, 59, 0, 0, time.UTC), "2026-05-02"},
		{"string", "2026-05-02", "2026-05-02"},
		{"timestamp string", "2026-05-02T00:00:00Z", "2026-05-02"},
		{"bytes", []byte("2026-05-02"), "2026-05-02"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d models.Date
			if err := d.Scan(tc.src); err != nil {
				t.Fatalf("scan: %v", err)
			}
			if got := d.String(); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDate_ScanRejectsGarbage(t *testing.T) {
	var d models.Date
	if err := d.Scan("yesterday"); err == nil {
		t.Fatal("expected error for unparseable date")
	}
	if err := d.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestDate_Value(t *testing.T) {
	v, err := models.Date{}.Value()
	if err != nil || v != nil {
		t.Fatalf("zero date should store NULL, got %v, %v", v, err)
	}
	d, _ := models.ParseDate("2026-05-02")
	v, err = d.Value()
	if err != nil || v != "2026-05-02" {
		t.Fatalf("got %v, %v", v, err)
	}
}

func TestDate_JSON(t *testing.T) {
	l := models.Lead{Email: "a@x.com", LastContact: models.NewDate(time.Date(2026, time.May, 2, 8, 0, 0, 0, time.UTC))}
	raw, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back models.Lead
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.LastContact.Equal(l.LastContact) {
		t.Fatalf("round trip changed the date: %s != %s", back.LastContact, l.LastContact)
	}

	var empty models.Lead
	if err := json.Unmarshal([]byte(`{"last_contact":null}`), &empty); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !empty.LastContact.IsZero() {
		t.Fatalf("null should decode to the zero date, got %s", empty.LastContact)
	}
	if err := json.Unmarshal([]byte(`{"last_contact":"02/05/2026"}`), &empty); err == nil {
		t.Fatal("expected error for non ISO date")
	}
}

func TestDate_EqualIgnoresTimeOfDay(t *testing.T) {
	morning := models.Date{Time: time.Date(2026, time.May, 2, 8, 0, 0, 0, time.UTC)}
	evening := models.Date{Time: time.Date(2026, time.May, 2, 20, 0, 0, 0, time.UTC)}
	if !morning.Equal(evening) {
		t.Fatal("dates on the same day should be equal")
	}
	if morning.Equal(models.Date{}) {
		t.Fatal("a date should not equal the zero date")
	}
}
