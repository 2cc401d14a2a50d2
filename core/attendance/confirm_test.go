package attendance

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

type fakeRepo struct {
	recs    []Record
	nextID  int
	bulkErr error
}

var _ Repository = (*fakeRepo)(nil)

func (r *fakeRepo) matches(rec Record, f *QueryFilter) bool {
	if f == nil {
		return true
	}
	if f.MemberID != 0 && rec.MemberID != f.MemberID {
		return false
	}
	if f.ClassID != nil && (rec.ClassID == nil || *rec.ClassID != *f.ClassID) {
		return false
	}
	if !f.Date.IsZero() && !rec.Date.Equal(f.Date) {
		return false
	}
	if !f.DateFrom.IsZero() && rec.Date.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && rec.Date.After(f.DateTo) {
		return false
	}
	if f.Present != nil && rec.Present != *f.Present {
		return false
	}
	return true
}

func (r *fakeRepo) upsert(rec Record) Record {
	for i, old := range r.recs {
		if old.MemberID == rec.MemberID && old.Date.Equal(rec.Date) {
			rec.ID = old.ID
			rec.CreatedAt = old.CreatedAt
			r.recs[i] = rec
			return rec
		}
	}
	r.nextID++
	rec.ID = r.nextID
	r.recs = append(r.recs, rec)
	return rec
}

func (r *fakeRepo) UpsertRecord(_ context.Context, rec Record, _ ...core.DBExecutor) (Record, error) {
	return r.upsert(rec), nil
}

func (r *fakeRepo) GetRecord(_ context.Context, memberID int, classID *int, date time.Time, _ ...core.DBExecutor) (Record, error) {
	for _, rec := range r.recs {
		if rec.MemberID == memberID && rec.Date.Equal(date) {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (r *fakeRepo) FilterRecords(_ context.Context, f *QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]Record, error) {
	out := make([]Record, 0)
	for _, rec := range r.recs {
		if r.matches(rec, f) {
			out = append(out, rec)
		}
	}
	for _, ord := range ordering {
		switch ord.Field {
		case "member_id":
			sort.Slice(out, func(i, j int) bool {
				if ord.Ascending {
					return out[i].MemberID < out[j].MemberID
				}
				return out[i].MemberID > out[j].MemberID
			})
		case "date":
			sort.Slice(out, func(i, j int) bool {
				if ord.Ascending {
					return out[i].Date.Before(out[j].Date)
				}
				return out[i].Date.After(out[j].Date)
			})
		}
	}
	return out, nil
}

func (r *fakeRepo) BulkUpsertRecords(_ context.Context, recs []Record, _ ...core.DBExecutor) ([]Record, error) {
	if r.bulkErr != nil {
		return nil, r.bulkErr
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, r.upsert(rec))
	}
	return out, nil
}

func (r *fakeRepo) CountRecords(ctx context.Context, f *QueryFilter, exec ...core.DBExecutor) (int, error) {
	recs, err := r.FilterRecords(ctx, f, nil, exec...)
	return len(recs), err
}

type fakeRoster struct {
	members []member.Member
}

func (r *fakeRoster) Roster(context.Context, int) ([]member.Member, error) {
	return r.members, nil
}

func newConfirmFixture(t *testing.T) (*fakeRepo, *fakeRoster, *Manager, *Confirmer, *Service) {
	t.Helper()
	conf := testConfig()
	repo := &fakeRepo{}
	svc := NewService(nil, repo, conf)
	mgr := NewManager(conf)
	roster := &fakeRoster{members: []member.Member{
		{ID: 1, Name: "Mina"},
		{ID: 2, Name: "Sara"},
		{ID: 3, Name: "Youssef"},
	}}
	return repo, roster, mgr, NewConfirmer(svc, mgr, roster, conf), svc
}

func TestConfirmer_proposeThenConfirm(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	now := time.Date(2025, time.October, 25, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }

	repo, _, mgr, cfm, _ := newConfirmFixture(t)
	ws := mgr.Seed(10, 1, saturday, seedEntries())

	prop, err := cfm.Propose(context.Background(), ws)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if prop.Present != 1 || prop.Absent != 2 {
		t.Errorf("Propose() summary = %d present %d absent, want 1/2", prop.Present, prop.Absent)
	}
	if len(prop.Changes) != 3 {
		t.Fatalf("Propose() staged %d changes, want 3", len(prop.Changes))
	}

	recs, err := cfm.Confirm(context.Background(), 10, prop.Token)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if len(recs) != 3 || len(repo.recs) != 3 {
		t.Errorf("Confirm() applied %d records, stored %d, want 3", len(recs), len(repo.recs))
	}
	for _, rec := range repo.recs {
		if rec.MarkedBy != 10 {
			t.Errorf("record %d marked by %d, want actor 10", rec.MemberID, rec.MarkedBy)
		}
	}

	// the workspace is gone once applied
	if _, err = mgr.Get(10, 1, saturday); err != ErrNotFound {
		t.Errorf("Get() after confirm error = %v, want ErrNotFound", err)
	}
	// and the token is single-use
	if _, err = cfm.Confirm(context.Background(), 10, prop.Token); err != ErrTokenAlreadyUsed {
		t.Errorf("Confirm() reuse error = %v, want ErrTokenAlreadyUsed", err)
	}
}

func TestConfirmer_tokenChecks(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	now := time.Date(2025, time.October, 25, 12, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }

	_, _, mgr, cfm, _ := newConfirmFixture(t)
	ws := mgr.Seed(10, 1, saturday, seedEntries())

	prop, err := cfm.Propose(context.Background(), ws)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	if _, err = cfm.Confirm(context.Background(), 11, prop.Token); err != ErrTokenMismatch {
		t.Errorf("Confirm() wrong actor error = %v, want ErrTokenMismatch", err)
	}
	if _, err = cfm.Confirm(context.Background(), 10, "bogus"); err != ErrNotFound {
		t.Errorf("Confirm() unknown token error = %v, want ErrNotFound", err)
	}

	now = now.Add(6 * time.Minute)
	if _, err = cfm.Confirm(context.Background(), 10, prop.Token); err != ErrTokenExpired {
		t.Errorf("Confirm() stale token error = %v, want ErrTokenExpired", err)
	}
	// the spent token keeps answering until it ages out
	if _, err = cfm.Confirm(context.Background(), 10, prop.Token); err != ErrTokenAlreadyUsed {
		t.Errorf("Confirm() spent token error = %v, want ErrTokenAlreadyUsed", err)
	}

	// a fresh proposal sweeps tokens expired for longer than the TTL
	now = now.Add(10 * time.Minute)
	ws = mgr.Seed(10, 2, saturday, seedEntries())
	if _, err = cfm.Propose(context.Background(), ws); err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if _, err = cfm.Confirm(context.Background(), 10, prop.Token); err != ErrNotFound {
		t.Errorf("Confirm() swept token error = %v, want ErrNotFound", err)
	}
}

func TestConfirmer_cancel(t *testing.T) {
	_, _, mgr, cfm, _ := newConfirmFixture(t)
	ws := mgr.Seed(10, 1, saturday, seedEntries())

	prop, err := cfm.Propose(context.Background(), ws)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if err = cfm.Cancel(11, prop.Token); err != ErrTokenMismatch {
		t.Errorf("Cancel() wrong actor error = %v, want ErrTokenMismatch", err)
	}
	if err = cfm.Cancel(10, prop.Token); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err = cfm.Confirm(context.Background(), 10, prop.Token); err != ErrTokenAlreadyUsed {
		t.Errorf("Confirm() after cancel error = %v, want ErrTokenAlreadyUsed", err)
	}
	if err = cfm.Cancel(10, prop.Token); err != ErrTokenAlreadyUsed {
		t.Errorf("Cancel() repeat error = %v, want ErrTokenAlreadyUsed", err)
	}

	// cancel keeps the workspace open for review
	if _, err = mgr.Get(10, 1, saturday); err != nil {
		t.Errorf("Get() after cancel error = %v, want workspace alive", err)
	}
}

func TestConfirmer_noChanges(t *testing.T) {
	repo, _, mgr, cfm, svc := newConfirmFixture(t)

	// store the exact state the workspace proposes
	for _, entry := range seedEntries() {
		classID := 1
		_, err := svc.Upsert(context.Background(), NewRecord{
			MemberID: entry.MemberID, ClassID: &classID, Date: saturday, Present: entry.Present, Note: entry.Note,
		}, 10)
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	if len(repo.recs) != 3 {
		t.Fatalf("stored %d records, want 3", len(repo.recs))
	}

	ws := mgr.Seed(10, 1, saturday, seedEntries())
	if _, err := cfm.Propose(context.Background(), ws); err != ErrNoChanges {
		t.Errorf("Propose() error = %v, want ErrNoChanges", err)
	}
}

func TestConfirmer_rosterChangedSinceSeeding(t *testing.T) {
	_, roster, mgr, cfm, _ := newConfirmFixture(t)
	ws := mgr.Seed(10, 1, saturday, seedEntries())

	// member 3 left the class while edits were pending
	roster.members = roster.members[:2]

	prop, err := cfm.Propose(context.Background(), ws)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	for _, change := range prop.Changes {
		if change.MemberID == 3 {
			t.Error("Propose() staged a change for a member no longer on the roster")
		}
	}
	if len(prop.Changes) != 2 {
		t.Errorf("Propose() staged %d changes, want 2", len(prop.Changes))
	}
}

func TestConfirmer_failedApplyReleasesToken(t *testing.T) {
	repo, _, mgr, cfm, _ := newConfirmFixture(t)
	ws := mgr.Seed(10, 1, saturday, seedEntries())

	prop, err := cfm.Propose(context.Background(), ws)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	repo.bulkErr = errors.New("db down")
	if _, err = cfm.Confirm(context.Background(), 10, prop.Token); err == nil {
		t.Fatal("Confirm() expected error")
	}
	if len(repo.recs) != 0 {
		t.Errorf("failed confirm left %d records behind", len(repo.recs))
	}
	// workspace survives a failed apply
	if _, err = mgr.Get(10, 1, saturday); err != nil {
		t.Errorf("Get() after failed confirm error = %v, want workspace alive", err)
	}
}
