package class

import (
	"context"
	"errors"
	"time"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

var (
	// errors
	ErrNotFound   = errors.New("class not found")
	ErrNameExists = errors.New("a class with this name already exists")
)

type (
	Repository interface {
		CheckNameUniqueness(ctx context.Context, name string, excluded []Class, exec ...core.DBExecutor) error
		CreateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (Class, error)
		QueryAllClasses(ctx context.Context, exec ...core.DBExecutor) ([]Class, error)
		UpdateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		DeleteClass(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	Service struct {
		db     core.DB
		repo   Repository
		mbrSvc *member.Service
	}
)

func NewService(db core.DB, repo Repository, mbrSvc *member.Service) *Service {
	return &Service{db: db, repo: repo, mbrSvc: mbrSvc}
}

// CheckUniqueness converts a duplicate name into a field-level validation error.
func (svc *Service) CheckUniqueness(ctx context.Context, name string, exclClasses ...Class) error {
	if err := svc.repo.CheckNameUniqueness(ctx, name, exclClasses); err != nil {
		if errors.Is(err, ErrNameExists) {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewClass) (Class, error) {
	if err := svc.CheckUniqueness(ctx, nc.Name); err != nil {
		return Class{}, err
	}
	now := time.Now().UTC()
	cls := Class{
		Name:        nc.Name,
		Description: nc.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateClass(ctx, cls)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Class, error) {
	return svc.repo.QueryAllClasses(ctx)
}

func (svc *Service) Update(ctx context.Context, id int, uc UpdateClass) (Class, error) {
	orig, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if err = svc.CheckUniqueness(ctx, uc.Name, orig); err != nil {
		return Class{}, err
	}
	cls := Class{
		ID:          id,
		Name:        uc.Name,
		Description: uc.Description,
		UpdatedAt:   time.Now().UTC(),
	}
	return svc.repo.UpdateClass(ctx, cls)
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteClass(ctx, id)
}

// Roster returns the active students of a class, ordered by member id.
func (svc *Service) Roster(ctx context.Context, classID int) ([]member.Member, error) {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	active := true
	filter := &member.QueryFilter{
		Roles:    []member.Role{member.RoleStudent},
		ClassID:  &classID,
		IsActive: &active,
	}
	return svc.mbrSvc.Filter(ctx, filter, core.DBOrdering{Field: "id", Ascending: true})
}
