package member

import (
	"context"
	"errors"
	"fmt"
	"time"

	wrap "github.com/pkg/errors"

	"github.com/beshoyehab/schoolbot/core"
)

var (
	// errors
	ErrNotFound         = errors.New("member not found")
	ErrTelegramIDExists = errors.New("a member with this telegram id already exists")
	ErrHasAttendance    = errors.New("member has attendance history and cannot be deleted")
	ErrPermissionDenied = errors.New("permission denied")
)

type (
	Repository interface {
		CheckTelegramIDUniqueness(ctx context.Context, tid int64, excluded []Member, exec ...core.DBExecutor) error
		CreateMember(ctx context.Context, mbr Member, exec ...core.DBExecutor) (Member, error)
		GetMember(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Member, error)
		// FilterMembers applies AND operation on available QueryFilter fields;
		// a nil or empty filter returns all members.
		FilterMembers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Member, error)
		UpdateMember(ctx context.Context, mbr Member, isActive *bool, exec ...core.DBExecutor) (Member, error)
		// SetMemberClass assigns or clears (nil) a member's class.
		SetMemberClass(ctx context.Context, id int, classID *int, exec ...core.DBExecutor) (Member, error)
		UpdateOrCreateMember(ctx context.Context, mbr Member, exec ...core.DBExecutor) (Member, error)
		DeleteMembersByID(ctx context.Context, ids []int, exec ...core.DBExecutor) error
	}

	Service struct {
		db   core.DB
		repo Repository
		conf *core.Config
	}
)

func NewService(db core.DB, repo Repository, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, conf: conf}
}

// CheckUniqueness converts a duplicate telegram id into a field-level
// validation error so the transport layer reports it like any other input issue.
func (svc *Service) CheckUniqueness(ctx context.Context, tid int64, exclMembers ...Member) error {
	if err := svc.repo.CheckTelegramIDUniqueness(ctx, tid, exclMembers); err != nil {
		if errors.Is(err, ErrTelegramIDExists) {
			return core.NewValidationError(err, core.FieldError{Field: "telegram_id", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nm NewMember) (Member, error) {
	now := time.Now().UTC()
	mbr := Member{
		TelegramID: nm.TelegramID,
		Name:       nm.Name,
		Email:      nm.Email,
		Role:       nm.Role,
		ClassID:    nm.ClassID,
		Language:   nm.Language,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if mbr.Language == "" {
		mbr.Language = svc.conf.DefaultLanguage
	}
	mbr.SetActive(true)
	if nm.Password != "" {
		if err := mbr.SetPassword(nm.Password); err != nil {
			return Member{}, wrap.Wrap(err, "hashing password")
		}
	}
	return svc.repo.CreateMember(ctx, mbr)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Member, error) {
	return svc.repo.GetMember(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByTelegramID(ctx context.Context, tid int64) (Member, error) {
	return svc.repo.GetMember(ctx, GetFilter{TelegramID: tid})
}

func (svc *Service) Filter(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Member, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.FilterMembers(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id int, um UpdateMember) (Member, error) {
	mbr := Member{
		ID:        id,
		Name:      um.Name,
		Email:     um.Email,
		ClassID:   um.ClassID,
		Language:  um.Language,
		UpdatedAt: time.Now().UTC(),
	}
	if um.Password != "" {
		if err := mbr.SetPassword(um.Password); err != nil {
			return Member{}, wrap.Wrap(err, "hashing password")
		}
	}
	return svc.repo.UpdateMember(ctx, mbr, um.IsActive)
}

// SetRole changes a member's role. Authorization is the caller's concern;
// handlers consult CanPerform and CanAssignRole before getting here.
func (svc *Service) SetRole(ctx context.Context, id int, role Role) (Member, error) {
	mbr, err := svc.repo.GetMember(ctx, GetFilter{ID: id})
	if err != nil {
		return Member{}, err
	}
	mbr.Role = role
	mbr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateMember(ctx, mbr, nil)
}

// SetClass enrolls a member into a class, or unlinks them when classID is
// nil. Their attendance history is left untouched either way.
func (svc *Service) SetClass(ctx context.Context, id int, classID *int) (Member, error) {
	return svc.repo.SetMemberClass(ctx, id, classID)
}

// SetLastActive records session activity for idle-timeout bookkeeping.
func (svc *Service) SetLastActive(ctx context.Context, mbr Member) (Member, error) {
	mbr.LastActive = time.Now().UTC()
	return svc.repo.UpdateMember(ctx, mbr, nil)
}

// Delete refuses members that still have attendance history; the repository
// returns ErrHasAttendance in that case and nothing is removed.
func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteMembersByID(ctx, ids)
}

// SyncSeed provisions the members declared in configuration, creating the
// missing ones and realigning role and class on the existing ones. It runs at
// startup so a fresh deployment has its actors before the first request.
func (svc *Service) SyncSeed(ctx context.Context, seeds []core.SeedMember) error {
	now := time.Now().UTC()
	for _, seed := range seeds {
		mbr := Member{
			TelegramID: seed.TelegramID,
			Name:       fmt.Sprintf("member %d", seed.TelegramID),
			Role:       Role(seed.Role),
			ClassID:    seed.ClassID,
			Language:   svc.conf.DefaultLanguage,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		mbr.SetActive(true)
		if _, err := svc.repo.UpdateOrCreateMember(ctx, mbr); err != nil {
			return wrap.Wrapf(err, "seeding member %d", seed.TelegramID)
		}
	}
	return nil
}
