package repo_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Skryldev/lead-manager/db"
	"github.com/Skryldev/lead-manager/models"
	"github.com/Skryldev/lead-manager/repo"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test fixture
// ─────────────────────────────────────────────────────────────────────────────

var fixedNow = time.Date(2026, time.March, 14, 15, 9, 26, 0, time.UTC)

func newTestRepo(t *testing.T) (repo.LeadRepository, *db.DB) {
	t.Helper()

	database, err := db.Open(db.Config{
		DSN:          ":memory:",
		DriverName:   "sqlite3",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	r := repo.NewLeadRepo(database, repo.WithNow(func() time.Time { return fixedNow }))
	if err := r.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return r, database
}

func lead(name, email string, score int) models.CreateLeadParams {
	return models.CreateLeadParams{
		Name:   name,
		Email:  email,
		Phone:  "+1 415 555 0100",
		Source: models.SourceLinkedIn,
		Score:  score,
		Notes:  "met at, \"the\" conference",
	}
}

func mustInsert(t *testing.T, r repo.LeadRepository, p models.CreateLeadParams) *models.Lead {
	t.Helper()
	l, err := r.Insert(context.Background(), p)
	if err != nil {
		t.Fatalf("insert %s: %v", p.Email, err)
	}
	return l
}

func mustList(t *testing.T, r repo.LeadRepository, status *string) []*models.Lead {
	t.Helper()
	leads, err := r.List(context.Background(), status)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return leads
}

func ptr(s string) *string { return &s }

// ─────────────────────────────────────────────────────────────────────────────
// EnsureSchema
// ─────────────────────────────────────────────────────────────────────────────

func TestLeadRepo_EnsureSchema_Idempotent(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, r, lead("Alice", "alice@repo.com", 10))

	for range 3 {
		if err := r.EnsureSchema(ctx); err != nil {
			t.Fatalf("ensure schema: %v", err)
		}
	}
	if n, _ := r.Count(ctx); n != 1 {
		t.Fatalf("EnsureSchema must not touch existing rows, count=%d", n)
	}
}

func TestLeadRepo_EnsureSchema_Concurrent(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.EnsureSchema(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent ensure schema: %v", err)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Insert
// ─────────────────────────────────────────────────────────────────────────────

func TestLeadRepo_Insert_StampsUTCDate(t *testing.T) {
	_, database := newTestRepo(t)

	// 01:30 on the 15th in UTC+10 is still the 14th in UTC.
	sydney := time.FixedZone("AEST", 10*60*60)
	local := time.Date(2026, time.March, 15, 1, 30, 0, 0, sydney)
	r := repo.NewLeadRepo(database, repo.WithNow(func() time.Time { return local }))

	l := mustInsert(t, r, lead("Tz", "tz@repo.com", 1))
	if got := l.LastContact.String(); got != "2026-03-14" {
		t.Fatalf("last_contact = %s, want the UTC date 2026-03-14", got)
	}
}

func TestLeadRepo_Insert(t *testing.T) {
	r, _ := newTestRepo(t)

	l := mustInsert(t, r, lead("Alice", "alice@repo.com", 50))
	if l.ID == 0 {
		t.Fatal("expected non-zero ID")
	}
	if l.Status != models.StatusNew {
		t.Fatalf("expected status New, got %q", l.Status)
	}
	if got := l.LastContact.String(); got != "2026-03-14" {
		t.Fatalf("expected last_contact 2026-03-14, got %q", got)
	}
	if l.Name != "Alice" || l.Score != 50 || l.Source != models.SourceLinkedIn {
		t.Fatalf("unexpected row: %+v", l)
	}
	if l.Notes != "met at, \"the\" conference" || l.Phone != "+1 415 555 0100" {
		t.Fatalf("optional fields not round-tripped: %+v", l)
	}

	listed := mustList(t, r, nil)
	if len(listed) != 1 || !reflect.DeepEqual(listed[0], l) {
		t.Fatalf("inserted lead not visible to list: %+v", listed)
	}
}

func TestLeadRepo_Insert_IDsIncrease(t *testing.T) {
	r, _ := newTestRepo(t)

	a := mustInsert(t, r, lead("A", "a@repo.com", 1))
	b := mustInsert(t, r, lead("B", "b@repo.com", 2))
	if b.ID <= a.ID {
		t.Fatalf("expected increasing ids, got %d then %d", a.ID, b.ID)
	}
}

func TestLeadRepo_Insert_NoValidationInStore(t *testing.T) {
	r, _ := newTestRepo(t)

	l := mustInsert(t, r, models.CreateLeadParams{Name: "", Email: "weird@repo.com", Source: "Carrier pigeon", Score: 150})
	if l.Score != 150 || l.Source != "Carrier pigeon" {
		t.Fatalf("store must persist values as given: %+v", l)
	}
	if l.Phone != "" || l.Notes != "" {
		t.Fatalf("empty optional fields should read back empty: %+v", l)
	}
}

func TestLeadRepo_Insert_DuplicateEmail(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, r, lead("Alice", "dup@repo.com", 10))
	_, err := r.Insert(ctx, lead("Impostor", "dup@repo.com", 99))
	if !errors.Is(err, repo.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if !db.IsDuplicateKey(err) {
		t.Fatalf("expected db.ErrDuplicateKey in chain, got %v", err)
	}

	leads := mustList(t, r, nil)
	if len(leads) != 1 || leads[0].Name != "Alice" || leads[0].Score != 10 {
		t.Fatalf("store changed by rejected insert: %+v", leads)
	}
}

func TestLeadRepo_Insert_ConcurrentSameEmail(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ok  int
		dup int
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Insert(ctx, lead(fmt.Sprintf("Racer %d", i), "race@repo.com", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, repo.ErrDuplicateEmail):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || dup != 9 {
		t.Fatalf("expected 1 success and 9 duplicates, got %d/%d", ok, dup)
	}
	if n, _ := r.Count(ctx); n != 1 {
		t.Fatalf("expected exactly one row, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

func TestLeadRepo_List_FilterIsExactAndBound(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, r, lead("A", "a@repo.com", 1))
	mustInsert(t, r, lead("B", "b@repo.com", 2))
	if _, err := r.UpdateStatus(ctx, "b@repo.com", models.StatusQualified); err != nil {
		t.Fatalf("update: %v", err)
	}

	if got := mustList(t, r, ptr("Qualified")); len(got) != 1 || got[0].Email != "b@repo.com" {
		t.Fatalf("unexpected Qualified subset: %+v", got)
	}
	if got := mustList(t, r, ptr("qualified")); len(got) != 0 {
		t.Fatalf("filter must be case-sensitive, got %+v", got)
	}
	if got := mustList(t, r, ptr("x' OR '1'='1")); len(got) != 0 {
		t.Fatalf("filter must be bound, not interpolated; got %d rows", len(got))
	}
	if n, _ := r.Count(ctx); n != 2 {
		t.Fatalf("store changed by list: %d", n)
	}
}

func TestLeadRepo_List_EmptyStore(t *testing.T) {
	r, _ := newTestRepo(t)
	leads := mustList(t, r, nil)
	if leads == nil || len(leads) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", leads)
	}
}

func TestLeadRepo_List_PartitionByStatus(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	for i := range 12 {
		email := fmt.Sprintf("p%02d@repo.com", i)
		mustInsert(t, r, lead("P", email, i))
		status := models.Statuses[i%len(models.Statuses)]
		if _, err := r.UpdateStatus(ctx, email, status); err != nil {
			t.Fatalf("update %s: %v", email, err)
		}
	}

	all := mustList(t, r, nil)
	var union []int64
	for _, s := range models.Statuses {
		for _, l := range mustList(t, r, ptr(string(s))) {
			if l.Status != s {
				t.Fatalf("lead %d with status %q returned for filter %q", l.ID, l.Status, s)
			}
			union = append(union, l.ID)
		}
	}
	sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })

	if len(union) != len(all) {
		t.Fatalf("partition size %d != total %d", len(union), len(all))
	}
	for i, l := range all {
		if union[i] != l.ID {
			t.Fatalf("partition mismatch at %d: %d vs %d", i, union[i], l.ID)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateStatus
// ─────────────────────────────────────────────────────────────────────────────

func TestLeadRepo_UpdateStatus_ChangesOnlyStatus(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	before := mustInsert(t, r, lead("Alice", "alice@repo.com", 42))
	other := mustInsert(t, r, lead("Bob", "bob@repo.com", 7))

	updated, err := r.UpdateStatus(ctx, "alice@repo.com", models.StatusContacted)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	want := *before
	want.Status = models.StatusContacted
	if !reflect.DeepEqual(*updated, want) {
		t.Fatalf("only status should change:\n got  %+v\n want %+v", *updated, want)
	}

	reread, err := r.GetByEmail(ctx, "alice@repo.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reread.Status != models.StatusContacted {
		t.Fatalf("second read does not reflect update: %q", reread.Status)
	}
	if bob, _ := r.GetByEmail(ctx, "bob@repo.com"); !reflect.DeepEqual(bob, other) {
		t.Fatalf("other lead changed: %+v", bob)
	}
}

func TestLeadRepo_UpdateStatus_AnyTransitionAllowed(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, r, lead("Alice", "alice@repo.com", 1))
	for _, s := range []models.Status{models.StatusClosed, models.StatusNew, models.StatusNew, models.StatusQualified} {
		l, err := r.UpdateStatus(ctx, "alice@repo.com", s)
		if err != nil {
			t.Fatalf("update to %s: %v", s, err)
		}
		if l.Status != s {
			t.Fatalf("expected %s, got %s", s, l.Status)
		}
	}
}

func TestLeadRepo_UpdateStatus_NotFoundLeavesStoreUnchanged(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, r, lead("Alice", "alice@repo.com", 1))
	mustInsert(t, r, lead("Bob", "bob@repo.com", 2))
	before := mustList(t, r, nil)

	_, err := r.UpdateStatus(ctx, "ghost@repo.com", models.StatusClosed)
	if !errors.Is(err, repo.ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
	if !db.IsNotFound(err) {
		t.Fatalf("expected db.ErrNotFound in chain, got %v", err)
	}

	after := mustList(t, r, nil)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("store changed:\n before %+v\n after  %+v", before, after)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// DeleteAll
// ─────────────────────────────────────────────────────────────────────────────

func TestLeadRepo_DeleteAll(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	for i := range 5 {
		mustInsert(t, r, lead("L", fmt.Sprintf("del%d@repo.com", i), i))
	}

	n, err := r.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 removed, got %d", n)
	}
	if leads := mustList(t, r, nil); len(leads) != 0 {
		t.Fatalf("expected empty store, got %d", len(leads))
	}

	n, err = r.DeleteAll(ctx)
	if err != nil || n != 0 {
		t.Fatalf("erase of empty store: n=%d err=%v", n, err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

func TestLeadRepo_GetByEmail_NotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.GetByEmail(context.Background(), "nobody@repo.com")
	if !db.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLeadRepo_CountByStatus(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, r, lead("A", "a@repo.com", 1))
	mustInsert(t, r, lead("B", "b@repo.com", 1))
	mustInsert(t, r, lead("C", "c@repo.com", 1))
	if _, err := r.UpdateStatus(ctx, "c@repo.com", models.StatusClosed); err != nil {
		t.Fatalf("update: %v", err)
	}

	counts, err := r.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	want := map[models.Status]int64{models.StatusNew: 2, models.StatusClosed: 1}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if n, _ := r.Count(ctx); n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Transaction: repo inside tx
// ─────────────────────────────────────────────────────────────────────────────

func TestLeadRepo_InsideTransaction(t *testing.T) {
	_, database := newTestRepo(t)
	ctx := context.Background()

	var created *models.Lead
	err := database.ExecTx(ctx, func(tx *db.Tx) error {
		l, err := repo.NewLeadRepo(tx).Insert(ctx, lead("TxLead", "tx@repo.com", 5))
		created = l
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	got, err := repo.NewLeadRepo(database).GetByEmail(ctx, "tx@repo.com")
	if err != nil {
		t.Fatalf("post-tx get: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("unexpected id: %d vs %d", got.ID, created.ID)
	}
}

func TestLeadRepo_RolledBackInsertIsInvisible(t *testing.T) {
	r, database := newTestRepo(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := database.ExecTx(ctx, func(tx *db.Tx) error {
		if _, err := repo.NewLeadRepo(tx).Insert(ctx, lead("Ghost", "ghost@repo.com", 5)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := r.Count(ctx); n != 0 {
		t.Fatalf("expected no rows after rollback, got %d", n)
	}
}
