package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

const fkViolation = "23503"

type memberRow struct {
	ID           int         `db:"id"`
	TelegramID   int64       `db:"telegram_id"`
	Name         string      `db:"name"`
	Email        null.String `db:"email"`
	Role         int         `db:"role"`
	ClassID      null.Int    `db:"class_id"`
	Language     string      `db:"language"`
	IsActive     null.Bool   `db:"is_active"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastActive   null.Time   `db:"last_active"`
}

func (row memberRow) unpack() member.Member {
	return member.Member{
		ID:           row.ID,
		TelegramID:   row.TelegramID,
		Name:         row.Name,
		Email:        row.Email.String,
		Role:         member.Role(row.Role),
		ClassID:      row.ClassID.Ptr(),
		Language:     row.Language,
		IsActive:     row.IsActive.Ptr(),
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastActive:   row.LastActive.Time,
	}
}

type memberRepository struct {
	db *sqlx.DB
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *sqlx.DB) *memberRepository {
	return &memberRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to member.ErrNotFound
func (repo memberRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return member.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo memberRepository) CheckTelegramIDUniqueness(ctx context.Context, tid int64, excluded []member.Member, exec ...core.DBExecutor) error {
	ext := getExt(repo.db, exec)

	q := `SELECT EXISTS (SELECT 1 FROM member WHERE telegram_id = ?`
	args := []interface{}{tid}
	if len(excluded) > 0 {
		ids := make([]int, 0, len(excluded))
		for _, mbr := range excluded {
			ids = append(ids, mbr.ID)
		}
		q += ` AND id NOT IN (?)`
		var err error
		if q, args, err = sqlx.In(q+`)`, tid, ids); err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
	} else {
		q += `)`
	}

	var exists bool
	if err := sqlx.GetContext(ctx, ext, &exists, ext.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking member uniqueness")
	}
	if exists {
		return member.ErrTelegramIDExists
	}
	return nil
}

func (repo memberRepository) CreateMember(ctx context.Context, mbr member.Member, exec ...core.DBExecutor) (member.Member, error) {
	ext := getExt(repo.db, exec)

	q := ext.Rebind(`
		INSERT INTO member (telegram_id, name, email, role, class_id, language, is_active, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := sqlx.GetContext(ctx, ext, &mbr.ID, q,
		mbr.TelegramID, mbr.Name, null.NewString(mbr.Email, mbr.Email != ""), int(mbr.Role),
		null.IntFromPtr(mbr.ClassID), mbr.Language, null.BoolFromPtr(mbr.IsActive),
		null.BytesFrom(mbr.PasswordHash), mbr.CreatedAt.UTC(), mbr.UpdatedAt.UTC(),
	)
	if err != nil {
		return member.Member{}, errors.Wrap(err, "inserting member")
	}
	return mbr, nil
}

func (repo memberRepository) GetMember(ctx context.Context, filter member.GetFilter, exec ...core.DBExecutor) (member.Member, error) {
	ext := getExt(repo.db, exec)

	var (
		row memberRow
		err error
	)
	if filter.ID != 0 {
		err = sqlx.GetContext(ctx, ext, &row, ext.Rebind(`SELECT * FROM member WHERE id = ?`), filter.ID)
	} else {
		err = sqlx.GetContext(ctx, ext, &row, ext.Rebind(`SELECT * FROM member WHERE telegram_id = ?`), filter.TelegramID)
	}
	if err != nil {
		return member.Member{}, repo.trapNoRowsErr(err, "finding member")
	}
	return row.unpack(), nil
}

func (repo memberRepository) FilterMembers(ctx context.Context, filter *member.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]member.Member, error) {
	ext := getExt(repo.db, exec)

	where := make([]string, 0)
	args := make([]interface{}, 0)
	if filter != nil {
		if filter.Search != "" {
			where = append(where, `name ILIKE ?`)
			args = append(args, "%"+filter.Search+"%")
		}
		if len(filter.Roles) > 0 {
			roles := make([]int, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roles = append(roles, int(role))
			}
			where = append(where, `role IN (?)`)
			args = append(args, roles)
		}
		if filter.ClassID != nil {
			where = append(where, `class_id = ?`)
			args = append(args, *filter.ClassID)
		}
		if filter.IsActive != nil {
			where = append(where, `is_active = ?`)
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, `created_at >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, `created_at <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	q := `SELECT * FROM member`
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

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building member query")
	}

	var rows []memberRow
	if err = sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	members := make([]member.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.unpack())
	}
	return members, nil
}

func (repo memberRepository) UpdateMember(ctx context.Context, mbr member.Member, isActive *bool, exec ...core.DBExecutor) (member.Member, error) {
	ext := getExt(repo.db, exec)

	// only save set fields
	sets := []string{`updated_at = ?`}
	args := []interface{}{mbr.UpdatedAt.UTC()}
	if mbr.Name != "" {
		sets = append(sets, `name = ?`)
		args = append(args, mbr.Name)
	}
	if mbr.Email != "" {
		sets = append(sets, `email = ?`)
		args = append(args, mbr.Email)
	}
	if mbr.Role != 0 {
		sets = append(sets, `role = ?`)
		args = append(args, int(mbr.Role))
	}
	if mbr.ClassID != nil {
		sets = append(sets, `class_id = ?`)
		args = append(args, *mbr.ClassID)
	}
	if mbr.Language != "" {
		sets = append(sets, `language = ?`)
		args = append(args, mbr.Language)
	}
	if mbr.PasswordHash != nil {
		sets = append(sets, `password_hash = ?`)
		args = append(args, mbr.PasswordHash)
	}
	if isActive != nil {
		sets = append(sets, `is_active = ?`)
		args = append(args, *isActive)
	}
	if !mbr.LastActive.IsZero() {
		sets = append(sets, `last_active = ?`)
		args = append(args, mbr.LastActive.UTC())
	}
	args = append(args, mbr.ID)

	q := ext.Rebind(`UPDATE member SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING *`)
	var row memberRow
	if err := sqlx.GetContext(ctx, ext, &row, q, args...); err != nil {
		return member.Member{}, repo.trapNoRowsErr(err, "updating member")
	}
	return row.unpack(), nil
}

func (repo memberRepository) SetMemberClass(ctx context.Context, id int, classID *int, exec ...core.DBExecutor) (member.Member, error) {
	ext := getExt(repo.db, exec)

	q := ext.Rebind(`UPDATE member SET class_id = ?, updated_at = ? WHERE id = ? RETURNING *`)
	var row memberRow
	if err := sqlx.GetContext(ctx, ext, &row, q, null.IntFromPtr(classID), time.Now().UTC(), id); err != nil {
		return member.Member{}, repo.trapNoRowsErr(err, "setting member class")
	}
	return row.unpack(), nil
}

func (repo memberRepository) UpdateOrCreateMember(ctx context.Context, mbr member.Member, exec ...core.DBExecutor) (member.Member, error) {
	ext := getExt(repo.db, exec)

	// existing members keep their name and language; seeds only realign
	// role, class and active flag
	q := ext.Rebind(`
		INSERT INTO member (telegram_id, name, email, role, class_id, language, is_active, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE
			SET role = EXCLUDED.role, class_id = EXCLUDED.class_id, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at
		RETURNING *`)
	var row memberRow
	err := sqlx.GetContext(ctx, ext, &row, q,
		mbr.TelegramID, mbr.Name, null.NewString(mbr.Email, mbr.Email != ""), int(mbr.Role),
		null.IntFromPtr(mbr.ClassID), mbr.Language, null.BoolFromPtr(mbr.IsActive),
		null.BytesFrom(mbr.PasswordHash), mbr.CreatedAt.UTC(), mbr.UpdatedAt.UTC(),
	)
	if err != nil {
		return member.Member{}, errors.Wrap(err, "upserting member")
	}
	return row.unpack(), nil
}

func (repo memberRepository) DeleteMembersByID(ctx context.Context, ids []int, exec ...core.DBExecutor) error {
	ext := getExt(repo.db, exec)

	q, args, err := sqlx.In(`DELETE FROM member WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building member delete")
	}
	if _, err = ext.ExecContext(ctx, ext.Rebind(q), args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == fkViolation {
			return member.ErrHasAttendance
		}
		return errors.Wrap(err, "deleting members")
	}
	return nil
}
