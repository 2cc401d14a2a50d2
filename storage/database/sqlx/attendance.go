package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/attendance"
)

type attendanceRow struct {
	ID        int       `db:"id"`
	MemberID  int       `db:"member_id"`
	ClassID   null.Int  `db:"class_id"`
	Date      time.Time `db:"date"`
	Present   bool      `db:"present"`
	Note      string    `db:"note"`
	MarkedBy  int       `db:"marked_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row attendanceRow) unpack() attendance.Record {
	return attendance.Record{
		ID:        row.ID,
		MemberID:  row.MemberID,
		ClassID:   row.ClassID.Ptr(),
		Date:      row.Date.UTC(),
		Present:   row.Present,
		Note:      row.Note,
		MarkedBy:  row.MarkedBy,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// UpsertRecord inserts or overwrites in place; the conflict target matches
// the unique expression index on (member_id, COALESCE(class_id, 0), date).
func (repo attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	ext := getExt(repo.db, exec)

	q := ext.Rebind(`
		INSERT INTO attendance (member_id, class_id, date, present, note, marked_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (member_id, COALESCE(class_id, 0), date) DO UPDATE
			SET present = EXCLUDED.present, note = EXCLUDED.note, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
		RETURNING *`)
	var row attendanceRow
	err := sqlx.GetContext(ctx, ext, &row, q,
		rec.MemberID, null.IntFromPtr(rec.ClassID), rec.Date.UTC(), rec.Present, rec.Note,
		rec.MarkedBy, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	return row.unpack(), nil
}

func (repo attendanceRepository) GetRecord(ctx context.Context, memberID int, classID *int, date time.Time, exec ...core.DBExecutor) (attendance.Record, error) {
	ext := getExt(repo.db, exec)

	q := ext.Rebind(`SELECT * FROM attendance WHERE member_id = ? AND COALESCE(class_id, 0) = ? AND date = ?`)
	var cid int
	if classID != nil {
		cid = *classID
	}
	var row attendanceRow
	if err := sqlx.GetContext(ctx, ext, &row, q, memberID, cid, date.UTC()); err != nil {
		return attendance.Record{}, repo.trapNoRowsErr(err, "finding attendance record")
	}
	return row.unpack(), nil
}

func buildRecordWhere(filter *attendance.QueryFilter) ([]string, []interface{}) {
	where := make([]string, 0)
	args := make([]interface{}, 0)
	if filter == nil {
		return where, args
	}
	if filter.MemberID != 0 {
		where = append(where, `member_id = ?`)
		args = append(args, filter.MemberID)
	}
	if filter.ClassID != nil {
		where = append(where, `class_id = ?`)
		args = append(args, *filter.ClassID)
	}
	if !filter.Date.IsZero() {
		where = append(where, `date = ?`)
		args = append(args, filter.Date.UTC())
	}
	if !filter.DateFrom.IsZero() {
		where = append(where, `date >= ?`)
		args = append(args, filter.DateFrom.UTC())
	}
	if !filter.DateTo.IsZero() {
		where = append(where, `date <= ?`)
		args = append(args, filter.DateTo.UTC())
	}
	if filter.Present != nil {
		where = append(where, `present = ?`)
		args = append(args, *filter.Present)
	}
	if filter.WithNote != nil {
		if *filter.WithNote {
			where = append(where, `note <> ''`)
		} else {
			where = append(where, `note = ''`)
		}
	}
	return where, args
}

func (repo attendanceRepository) FilterRecords(ctx context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attendance.Record, error) {
	ext := getExt(repo.db, exec)

	where, args := buildRecordWhere(filter)
	q := `SELECT * FROM attendance`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		q += ` ORDER BY ` + strings.Join(orderList, ", ")
	}

	var rows []attendanceRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	recs := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.unpack())
	}
	return recs, nil
}

// BulkUpsertRecords applies the whole batch in one transaction.
func (repo attendanceRepository) BulkUpsertRecords(ctx context.Context, recs []attendance.Record, exec ...core.DBExecutor) ([]attendance.Record, error) {
	if len(exec) > 0 {
		// caller already owns a transaction
		out := make([]attendance.Record, 0, len(recs))
		for _, rec := range recs {
			saved, err := repo.UpsertRecord(ctx, rec, exec...)
			if err != nil {
				return nil, err
			}
			out = append(out, saved)
		}
		return out, nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	out := make([]attendance.Record, 0, len(recs))
	for _, rec := range recs {
		saved, err := repo.UpsertRecord(ctx, rec, tx)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return nil, errors.Wrapf(err, "rolling back transaction: %v", rbErr)
			}
			return nil, err
		}
		out = append(out, saved)
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing transaction")
	}
	return out, nil
}

func (repo attendanceRepository) CountRecords(ctx context.Context, filter *attendance.QueryFilter, exec ...core.DBExecutor) (int, error) {
	ext := getExt(repo.db, exec)

	where, args := buildRecordWhere(filter)
	q := `SELECT COUNT(*) FROM attendance`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}

	var count int
	if err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(q), args...); err != nil {
		return 0, errors.Wrap(err, "counting attendance records")
	}
	return count, nil
}
