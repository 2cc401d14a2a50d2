package dummydb

import (
	"context"
	"sort"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/class"
)

type classRepository struct {
	db *classTable
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *DB) *classRepository {
	return &classRepository{db: db.class}
}

func (repo *classRepository) query() []class.Class {
	classes := make([]class.Class, 0, len(repo.db.table))
	for _, cls := range repo.db.table {
		classes = append(classes, *cls)
	}
	return classes
}

func (repo *classRepository) CheckNameUniqueness(_ context.Context, name string, excluded []class.Class, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	exclIDs := make(map[int]bool, len(excluded))
	for _, cls := range excluded {
		exclIDs[cls.ID] = true
	}
	for _, cls := range repo.query() {
		if cls.Name == name && !exclIDs[cls.ID] {
			return class.ErrNameExists
		}
	}
	return nil
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class, _ ...core.DBExecutor) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pkCount++
	cls.ID = repo.db.pkCount
	repo.db.table[cls.ID] = &cls
	return cls, nil
}

func (repo *classRepository) GetClass(_ context.Context, id int, _ ...core.DBExecutor) (class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cls, ok := repo.db.table[id]; ok {
		return *cls, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) QueryAllClasses(_ context.Context, _ ...core.DBExecutor) ([]class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classes := repo.query()
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *classRepository) UpdateClass(_ context.Context, cls class.Class, _ ...core.DBExecutor) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[cls.ID]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	if cls.Name != "" {
		orig.Name = cls.Name
	}
	if cls.Description != "" {
		orig.Description = cls.Description
	}
	orig.UpdatedAt = cls.UpdatedAt

	repo.db.table[cls.ID] = orig
	return *orig, nil
}

func (repo *classRepository) DeleteClass(_ context.Context, id int, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.table, id)
	return nil
}
