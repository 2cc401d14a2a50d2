package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/class"
)

type classRow struct {
	ID          int       `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row classRow) unpack() class.Class {
	return class.Class(row)
}

type classRepository struct {
	db *sqlx.DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *sqlx.DB) *classRepository {
	return &classRepository{db: db}
}

func (repo classRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return class.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo classRepository) CheckNameUniqueness(ctx context.Context, name string, excluded []class.Class, exec ...core.DBExecutor) error {
	ext := getExt(repo.db, exec)

	q := `SELECT EXISTS (SELECT 1 FROM class WHERE name = ?`
	args := []interface{}{name}
	if len(excluded) > 0 {
		ids := make([]int, 0, len(excluded))
		for _, cls := range excluded {
			ids = append(ids, cls.ID)
		}
		var err error
		if q, args, err = sqlx.In(q+` AND id NOT IN (?))`, name, ids); err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
	} else {
		q += `)`
	}

	var exists bool
	if err := sqlx.GetContext(ctx, ext, &exists, ext.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking class uniqueness")
	}
	if exists {
		return class.ErrNameExists
	}
	return nil
}

func (repo classRepository) CreateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	ext := getExt(repo.db, exec)

	q := ext.Rebind(`
		INSERT INTO class (name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`)
	err := sqlx.GetContext(ctx, ext, &cls.ID, q, cls.Name, cls.Description, cls.CreatedAt.UTC(), cls.UpdatedAt.UTC())
	if err != nil {
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo classRepository) GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (class.Class, error) {
	ext := getExt(repo.db, exec)

	var row classRow
	if err := sqlx.GetContext(ctx, ext, &row, ext.Rebind(`SELECT * FROM class WHERE id = ?`), id); err != nil {
		return class.Class{}, repo.trapNoRowsErr(err, "finding class")
	}
	return row.unpack(), nil
}

func (repo classRepository) QueryAllClasses(ctx context.Context, exec ...core.DBExecutor) ([]class.Class, error) {
	ext := getExt(repo.db, exec)

	var rows []classRow
	if err := sqlx.SelectContext(ctx, ext, &rows, `SELECT * FROM class ORDER BY name ASC`); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.unpack())
	}
	return classes, nil
}

func (repo classRepository) UpdateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	ext := getExt(repo.db, exec)

	q := ext.Rebind(`
		UPDATE class SET name = ?, description = ?, updated_at = ?
		WHERE id = ?
		RETURNING *`)
	var row classRow
	if err := sqlx.GetContext(ctx, ext, &row, q, cls.Name, cls.Description, cls.UpdatedAt.UTC(), cls.ID); err != nil {
		return class.Class{}, repo.trapNoRowsErr(err, "updating class")
	}
	return row.unpack(), nil
}

func (repo classRepository) DeleteClass(ctx context.Context, id int, exec ...core.DBExecutor) error {
	ext := getExt(repo.db, exec)

	if _, err := ext.ExecContext(ctx, ext.Rebind(`DELETE FROM class WHERE id = ?`), id); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return nil
}
