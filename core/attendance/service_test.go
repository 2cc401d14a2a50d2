package attendance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/attendance"
	"github.com/beshoyehab/schoolbot/core/schoolday"
	dummydb "github.com/beshoyehab/schoolbot/storage/database/dummy"
)

var (
	oct18 = time.Date(2025, time.October, 18, 0, 0, 0, 0, time.UTC)
	oct25 = time.Date(2025, time.October, 25, 0, 0, 0, 0, time.UTC)
	nov1  = time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	nov8  = time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*attendance.Service, *dummydb.DB) {
	t.Helper()
	conf := &core.Config{}
	conf.ClassDay = time.Saturday
	conf.MaxNoteLen = 100
	conf.StreakLookback = 20

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("opening dummy db: %v", err)
	}
	return attendance.NewService(nil, dummydb.NewAttendanceRepository(db), conf), db
}

func TestService_Upsert(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	classID := 1

	rec, err := svc.Upsert(ctx, attendance.NewRecord{
		MemberID: 42, ClassID: &classID, Date: oct25, Present: false, Note: "sick",
	}, 10)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if rec.Present || rec.Note != "sick" || rec.MarkedBy != 10 {
		t.Errorf("Upsert() = %+v", rec)
	}

	// marking again overwrites in place
	again, err := svc.Upsert(ctx, attendance.NewRecord{
		MemberID: 42, ClassID: &classID, Date: oct25, Present: true,
	}, 11)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if again.ID != rec.ID {
		t.Errorf("Upsert() created record %d, want overwrite of %d", again.ID, rec.ID)
	}
	if !again.Present || again.Note != "" {
		t.Errorf("Upsert() = %+v, want present without note", again)
	}

	recs, err := svc.RosterAttendance(ctx, classID, oct25)
	if err != nil {
		t.Fatalf("RosterAttendance() error = %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("RosterAttendance() returned %d records, want 1", len(recs))
	}
}

func TestService_Upsert_notClassDay(t *testing.T) {
	svc, _ := newTestService(t)
	classID := 1

	monday := time.Date(2025, time.October, 20, 0, 0, 0, 0, time.UTC)
	_, err := svc.Upsert(context.Background(), attendance.NewRecord{
		MemberID: 42, ClassID: &classID, Date: monday, Present: true,
	}, 10)
	var wwErr *schoolday.WrongWeekdayError
	if !errors.As(err, &wwErr) {
		t.Fatalf("Upsert() error = %v, want WrongWeekdayError", err)
	}
}

func TestService_Upsert_noteRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	classID := 1

	long := make([]rune, 101)
	for i := range long {
		long[i] = 'x'
	}
	_, err := svc.Upsert(ctx, attendance.NewRecord{
		MemberID: 42, ClassID: &classID, Date: oct25, Present: false, Note: string(long),
	}, 10)
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Upsert() long note error = %v, want ValidationError", err)
	}

	// a note on a present mark is silently dropped
	rec, err := svc.Upsert(ctx, attendance.NewRecord{
		MemberID: 42, ClassID: &classID, Date: oct25, Present: true, Note: "ignored",
	}, 10)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if rec.Note != "" {
		t.Errorf("Upsert() note = %q, want empty", rec.Note)
	}
}

func TestService_BulkUpsert(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	classID := 1

	nrs := make([]attendance.NewRecord, 0, 5)
	for id := 1; id <= 5; id++ {
		nrs = append(nrs, attendance.NewRecord{MemberID: id, ClassID: &classID, Date: oct25, Present: true})
	}
	recs, err := svc.BulkUpsert(ctx, nrs, 10)
	if err != nil {
		t.Fatalf("BulkUpsert() error = %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("BulkUpsert() applied %d records, want 5", len(recs))
	}

	stats, err := svc.DayStats(ctx, classID, oct25)
	if err != nil {
		t.Fatalf("DayStats() error = %v", err)
	}
	if stats.Present != 5 || stats.Absent != 0 || stats.Rate != 1 {
		t.Errorf("DayStats() = %+v", stats)
	}
	if n, err := svc.Count(ctx, &attendance.QueryFilter{ClassID: &classID}); err != nil || n != 5 {
		t.Errorf("Count() = %d, %v, want 5", n, err)
	}

	if _, err = svc.BulkUpsert(ctx, nil, 10); err != attendance.ErrNoChanges {
		t.Errorf("BulkUpsert() empty error = %v, want ErrNoChanges", err)
	}
}

func TestService_BulkUpsert_atomic(t *testing.T) {
	conf := &core.Config{}
	conf.ClassDay = time.Saturday
	conf.MaxNoteLen = 100
	conf.StreakLookback = 20

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("opening dummy db: %v", err)
	}
	repo := dummydb.NewAttendanceRepository(db)
	svc := attendance.NewService(nil, repo, conf)
	ctx := context.Background()
	classID := 1

	boom := errors.New("disk full")
	calls := 0
	repo.SetBulkHook(func(attendance.Record) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})

	nrs := make([]attendance.NewRecord, 0, 5)
	for id := 1; id <= 5; id++ {
		nrs = append(nrs, attendance.NewRecord{MemberID: id, ClassID: &classID, Date: oct25, Present: true})
	}
	if _, err = svc.BulkUpsert(ctx, nrs, 10); !errors.Is(err, boom) {
		t.Fatalf("BulkUpsert() error = %v, want injected failure", err)
	}

	repo.SetBulkHook(nil)
	recs, err := svc.RosterAttendance(ctx, classID, oct25)
	if err != nil {
		t.Fatalf("RosterAttendance() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("failed bulk left %d records behind, want 0", len(recs))
	}
}

func TestService_History(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	classID := 1

	for _, mark := range []struct {
		date    time.Time
		present bool
	}{
		{oct18, true}, {oct25, false}, {nov1, false}, {nov8, false},
	} {
		if _, err := svc.Upsert(ctx, attendance.NewRecord{
			MemberID: 42, ClassID: &classID, Date: mark.date, Present: mark.present,
		}, 10); err != nil {
			t.Fatalf("Upsert(%v) error = %v", mark.date, err)
		}
	}

	// plus one record outside the class
	nov15 := time.Date(2025, time.November, 15, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Upsert(ctx, attendance.NewRecord{
		MemberID: 42, Date: nov15, Present: true,
	}, 10); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	recs, err := svc.History(ctx, 42, nil, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("History() returned %d records, want 5", len(recs))
	}
	if !recs[0].Date.Equal(nov15) || !recs[4].Date.Equal(oct18) {
		t.Errorf("History() not most-recent-first: %v ... %v", recs[0].Date, recs[4].Date)
	}

	recs, err = svc.History(ctx, 42, &classID, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(recs) != 4 {
		t.Errorf("History() class-scoped returned %d records, want 4", len(recs))
	}

	recs, err = svc.History(ctx, 42, nil, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("History() limited returned %d records, want 2", len(recs))
	}
}

func TestService_ConsecutiveAbsences(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	classID := 1

	mark := func(memberID int, date time.Time, present bool) {
		t.Helper()
		if _, err := svc.Upsert(ctx, attendance.NewRecord{
			MemberID: memberID, ClassID: &classID, Date: date, Present: present,
		}, 10); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	// member 1: present, then three straight absences
	mark(1, oct18, true)
	mark(1, oct25, false)
	mark(1, nov1, false)
	mark(1, nov8, false)

	// member 2: absences broken by the latest mark
	mark(2, oct25, false)
	mark(2, nov1, false)
	mark(2, nov8, true)

	streak, err := svc.ConsecutiveAbsences(ctx, 1, nil)
	if err != nil {
		t.Fatalf("ConsecutiveAbsences() error = %v", err)
	}
	if streak != 3 {
		t.Errorf("ConsecutiveAbsences() = %d, want 3", streak)
	}

	streak, err = svc.ConsecutiveAbsences(ctx, 2, nil)
	if err != nil {
		t.Fatalf("ConsecutiveAbsences() error = %v", err)
	}
	if streak != 0 {
		t.Errorf("ConsecutiveAbsences() = %d, want 0", streak)
	}

	// no records at all
	streak, err = svc.ConsecutiveAbsences(ctx, 3, nil)
	if err != nil {
		t.Fatalf("ConsecutiveAbsences() error = %v", err)
	}
	if streak != 0 {
		t.Errorf("ConsecutiveAbsences() = %d, want 0", streak)
	}

	// a later class-less record breaks the streak org-wide but not in class
	nov15 := time.Date(2025, time.November, 15, 0, 0, 0, 0, time.UTC)
	if _, err = svc.Upsert(ctx, attendance.NewRecord{
		MemberID: 1, Date: nov15, Present: true,
	}, 10); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if streak, err = svc.ConsecutiveAbsences(ctx, 1, nil); err != nil || streak != 0 {
		t.Errorf("ConsecutiveAbsences() = %d, %v, want 0", streak, err)
	}
	if streak, err = svc.ConsecutiveAbsences(ctx, 1, &classID); err != nil || streak != 3 {
		t.Errorf("ConsecutiveAbsences() class-scoped = %d, %v, want 3", streak, err)
	}
}

func TestService_AbsenceReasons(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	classID := 1

	marks := []attendance.NewRecord{
		{MemberID: 1, ClassID: &classID, Date: oct25, Present: false, Note: "sick"},
		{MemberID: 2, ClassID: &classID, Date: oct25, Present: false, Note: "sick"},
		{MemberID: 3, ClassID: &classID, Date: oct25, Present: false, Note: "traveling"},
		{MemberID: 4, ClassID: &classID, Date: oct25, Present: false},
		{MemberID: 5, ClassID: &classID, Date: oct25, Present: true},
	}
	for _, nr := range marks {
		if _, err := svc.Upsert(ctx, nr, 10); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	breakdown, err := svc.AbsenceReasons(ctx, classID, oct18, nov1)
	if err != nil {
		t.Fatalf("AbsenceReasons() error = %v", err)
	}
	if breakdown.TotalAbsent != 4 || breakdown.TotalWithReason != 3 {
		t.Errorf("AbsenceReasons() totals = %d/%d, want 4/3", breakdown.TotalAbsent, breakdown.TotalWithReason)
	}
	if len(breakdown.Reasons) != 2 || breakdown.Reasons[0].Note != "sick" || breakdown.Reasons[0].Count != 2 {
		t.Errorf("AbsenceReasons() reasons = %+v", breakdown.Reasons)
	}
}

func TestRate(t *testing.T) {
	if got := attendance.Rate(3, 4); got != 0.75 {
		t.Errorf("Rate(3, 4) = %v, want 0.75", got)
	}
	if got := attendance.Rate(0, 0); got != 0 {
		t.Errorf("Rate(0, 0) = %v, want 0", got)
	}
}
