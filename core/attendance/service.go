package attendance

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/schoolday"
)

type (
	Repository interface {
		UpsertRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		GetRecord(ctx context.Context, memberID int, classID *int, date time.Time, exec ...core.DBExecutor) (Record, error)
		// FilterRecords applies AND operation on available QueryFilter fields.
		FilterRecords(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Record, error)
		// BulkUpsertRecords applies all records or none.
		BulkUpsertRecords(ctx context.Context, recs []Record, exec ...core.DBExecutor) ([]Record, error)
		CountRecords(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		db   core.DB
		repo Repository
		conf *core.Config
		cal  schoolday.Calendar
	}
)

func NewService(db core.DB, repo Repository, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, conf: conf, cal: schoolday.New(conf.ClassDay)}
}

func (svc *Service) Calendar() schoolday.Calendar {
	return svc.cal
}

// cleanNote enforces the absence-note rules: a note only accompanies an
// absence (marking present drops it) and is bounded in length.
func (svc *Service) cleanNote(present bool, note string) (string, error) {
	if present {
		return "", nil
	}
	if utf8.RuneCountInString(note) > svc.conf.MaxNoteLen {
		return "", core.NewValidationError(ErrNoteTooLong, core.FieldError{Field: "note", Error: ErrNoteTooLong.Error()})
	}
	return note, nil
}

// Upsert marks one member's attendance for a class day, overwriting any
// existing record for the same (member, class, date).
func (svc *Service) Upsert(ctx context.Context, nr NewRecord, markedBy int) (Record, error) {
	date, err := svc.cal.ValidateDate(nr.Date)
	if err != nil {
		return Record{}, err
	}
	note, err := svc.cleanNote(nr.Present, nr.Note)
	if err != nil {
		return Record{}, err
	}
	now := time.Now().UTC()
	rec := Record{
		MemberID:  nr.MemberID,
		ClassID:   nr.ClassID,
		Date:      date,
		Present:   nr.Present,
		Note:      note,
		MarkedBy:  markedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.UpsertRecord(ctx, rec)
}

func (svc *Service) Get(ctx context.Context, memberID int, classID *int, date time.Time) (Record, error) {
	return svc.repo.GetRecord(ctx, memberID, classID, schoolday.Normalize(date))
}

func (svc *Service) Filter(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Record, error) {
	return svc.repo.FilterRecords(ctx, filter, ordering)
}

// Count reports how many records match the filter.
func (svc *Service) Count(ctx context.Context, filter *QueryFilter) (int, error) {
	return svc.repo.CountRecords(ctx, filter)
}

// RosterAttendance returns a class day's records ordered by member id.
func (svc *Service) RosterAttendance(ctx context.Context, classID int, date time.Time) ([]Record, error) {
	date, err := svc.cal.ValidateDate(date)
	if err != nil {
		return nil, err
	}
	filter := &QueryFilter{ClassID: &classID, Date: date}
	return svc.repo.FilterRecords(ctx, filter, []core.DBOrdering{{Field: "member_id", Ascending: true}})
}

// BulkUpsert marks a batch of records atomically: either every record is
// applied or none is.
func (svc *Service) BulkUpsert(ctx context.Context, nrs []NewRecord, markedBy int) ([]Record, error) {
	if len(nrs) == 0 {
		return nil, ErrNoChanges
	}
	now := time.Now().UTC()
	recs := make([]Record, 0, len(nrs))
	for _, nr := range nrs {
		date, err := svc.cal.ValidateDate(nr.Date)
		if err != nil {
			return nil, err
		}
		note, err := svc.cleanNote(nr.Present, nr.Note)
		if err != nil {
			return nil, err
		}
		recs = append(recs, Record{
			MemberID:  nr.MemberID,
			ClassID:   nr.ClassID,
			Date:      date,
			Present:   nr.Present,
			Note:      note,
			MarkedBy:  markedBy,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return svc.repo.BulkUpsertRecords(ctx, recs)
}

// History returns a member's records, most recent class day first. A class id
// narrows it to records of that class; limit <= 0 returns all of them.
func (svc *Service) History(ctx context.Context, memberID int, classID *int, limit int) ([]Record, error) {
	recs, err := svc.repo.FilterRecords(ctx,
		&QueryFilter{MemberID: memberID, ClassID: classID},
		[]core.DBOrdering{{Field: "date", Ascending: false}},
	)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// ConsecutiveAbsences counts a member's unbroken run of absences ending at
// their most recent record, optionally scoped to one class. The walk is
// bounded by the configured lookback window; a streak longer than the window
// reports the window size.
func (svc *Service) ConsecutiveAbsences(ctx context.Context, memberID int, classID *int) (int, error) {
	recs, err := svc.History(ctx, memberID, classID, svc.conf.StreakLookback)
	if err != nil {
		return 0, err
	}
	streak := 0
	for _, rec := range recs {
		if rec.Present {
			break
		}
		streak++
	}
	return streak, nil
}
