package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable

	// bulkHook runs before each record is staged during a bulk upsert; tests
	// inject failures here to exercise the all-or-nothing guarantee.
	bulkHook func(rec attendance.Record) error
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.attendance}
}

func (repo *attendanceRepository) SetBulkHook(hook func(rec attendance.Record) error) {
	repo.bulkHook = hook
}

func (repo *attendanceRepository) query() []attendance.Record {
	recs := make([]attendance.Record, 0, len(repo.db.table))
	for _, rec := range repo.db.table {
		recs = append(recs, *rec)
	}
	return recs
}

func sameSlot(a, b attendance.Record) bool {
	if !a.Date.Equal(b.Date) || a.MemberID != b.MemberID {
		return false
	}
	aCls, bCls := 0, 0
	if a.ClassID != nil {
		aCls = *a.ClassID
	}
	if b.ClassID != nil {
		bCls = *b.ClassID
	}
	return aCls == bCls
}

// upsert overwrites the record occupying the same (member, class, date) slot
// or inserts a new one. Callers hold the write lock.
func (repo *attendanceRepository) upsert(rec attendance.Record) attendance.Record {
	for id, old := range repo.db.table {
		if sameSlot(*old, rec) {
			rec.ID = id
			rec.CreatedAt = old.CreatedAt
			repo.db.table[id] = &rec
			return rec
		}
	}
	repo.db.pkCount++
	rec.ID = repo.db.pkCount
	repo.db.table[rec.ID] = &rec
	return rec
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, rec attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	return repo.upsert(rec), nil
}

func (repo *attendanceRepository) GetRecord(_ context.Context, memberID int, classID *int, date time.Time, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	probe := attendance.Record{MemberID: memberID, ClassID: classID, Date: date}
	for _, rec := range repo.db.table {
		if sameSlot(*rec, probe) {
			return *rec, nil
		}
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func matches(rec attendance.Record, filter *attendance.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.MemberID != 0 && rec.MemberID != filter.MemberID {
		return false
	}
	if filter.ClassID != nil && (rec.ClassID == nil || *rec.ClassID != *filter.ClassID) {
		return false
	}
	if !filter.Date.IsZero() && !rec.Date.Equal(filter.Date) {
		return false
	}
	if !filter.DateFrom.IsZero() && rec.Date.Before(filter.DateFrom) {
		return false
	}
	if !filter.DateTo.IsZero() && rec.Date.After(filter.DateTo) {
		return false
	}
	if filter.Present != nil && rec.Present != *filter.Present {
		return false
	}
	if filter.WithNote != nil && (rec.Note != "") != *filter.WithNote {
		return false
	}
	return true
}

func (repo *attendanceRepository) FilterRecords(_ context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]attendance.Record, 0)
	for _, rec := range repo.query() {
		if matches(rec, filter) {
			recs = append(recs, rec)
		}
	}
	applyRecordOrdering(recs, ordering)
	return recs, nil
}

func applyRecordOrdering(recs []attendance.Record, ordering []core.DBOrdering) {
	for i := len(ordering) - 1; i >= 0; i-- {
		ord := ordering[i]
		switch ord.Field {
		case "member_id":
			sort.SliceStable(recs, func(i, j int) bool {
				if ord.Ascending {
					return recs[i].MemberID < recs[j].MemberID
				}
				return recs[i].MemberID > recs[j].MemberID
			})
		case "date":
			sort.SliceStable(recs, func(i, j int) bool {
				if ord.Ascending {
					return recs[i].Date.Before(recs[j].Date)
				}
				return recs[i].Date.After(recs[j].Date)
			})
		}
	}
}

// BulkUpsertRecords stages the whole batch before touching the table so a
// failure partway leaves nothing applied.
func (repo *attendanceRepository) BulkUpsertRecords(_ context.Context, recs []attendance.Record, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, rec := range recs {
		if repo.bulkHook != nil {
			if err := repo.bulkHook(rec); err != nil {
				return nil, err
			}
		}
	}

	out := make([]attendance.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, repo.upsert(rec))
	}
	return out, nil
}

func (repo *attendanceRepository) CountRecords(ctx context.Context, filter *attendance.QueryFilter, exec ...core.DBExecutor) (int, error) {
	recs, err := repo.FilterRecords(ctx, filter, nil, exec...)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}
