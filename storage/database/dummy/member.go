package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

type memberRepository struct {
	db     *memberTable
	attTbl *attendanceTable
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *DB) *memberRepository {
	return &memberRepository{db: db.member, attTbl: db.attendance}
}

func (repo *memberRepository) query() []member.Member {
	members := make([]member.Member, 0, len(repo.db.table))
	for _, mbr := range repo.db.table {
		members = append(members, *mbr)
	}
	return members
}

func (repo *memberRepository) CheckTelegramIDUniqueness(_ context.Context, tid int64, excluded []member.Member, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	exclIDs := make(map[int]bool, len(excluded))
	for _, mbr := range excluded {
		exclIDs[mbr.ID] = true
	}
	for _, mbr := range repo.query() {
		if mbr.TelegramID == tid && !exclIDs[mbr.ID] {
			return member.ErrTelegramIDExists
		}
	}
	return nil
}

func (repo *memberRepository) CreateMember(_ context.Context, mbr member.Member, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pkCount++
	mbr.ID = repo.db.pkCount
	repo.db.table[mbr.ID] = &mbr
	return mbr, nil
}

func (repo *memberRepository) GetMember(_ context.Context, filter member.GetFilter, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != 0 {
		if mbr, ok := repo.db.table[filter.ID]; ok {
			return *mbr, nil
		}
		return member.Member{}, member.ErrNotFound
	}
	for _, mbr := range repo.query() {
		if mbr.TelegramID == filter.TelegramID {
			return mbr, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (repo *memberRepository) FilterMembers(_ context.Context, filter *member.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	members := repo.query()
	if filter != nil {
		if filter.Search != "" {
			var filtered []member.Member
			for _, mbr := range members {
				if strings.Contains(strings.ToLower(mbr.Name), strings.ToLower(filter.Search)) {
					filtered = append(filtered, mbr)
				}
			}
			members = filtered
		}
		if members != nil && len(filter.Roles) > 0 {
			var filtered []member.Member
			for _, mbr := range members {
				for _, role := range filter.Roles {
					if mbr.Role == role {
						filtered = append(filtered, mbr)
						break
					}
				}
			}
			members = filtered
		}
		if members != nil && filter.ClassID != nil {
			var filtered []member.Member
			for _, mbr := range members {
				if mbr.InClass(*filter.ClassID) {
					filtered = append(filtered, mbr)
				}
			}
			members = filtered
		}
		if members != nil && filter.IsActive != nil {
			var filtered []member.Member
			for _, mbr := range members {
				if mbr.IsActive != nil && *mbr.IsActive == *filter.IsActive {
					filtered = append(filtered, mbr)
				}
			}
			members = filtered
		}
		if members != nil && !filter.CreatedFrom.IsZero() {
			var filtered []member.Member
			from := filter.CreatedFrom.UTC()
			for _, mbr := range members {
				if !mbr.CreatedAt.Before(from) {
					filtered = append(filtered, mbr)
				}
			}
			members = filtered
		}
		if members != nil && !filter.CreatedTo.IsZero() {
			var filtered []member.Member
			to := filter.CreatedTo.UTC()
			for _, mbr := range members {
				if !mbr.CreatedAt.After(to) {
					filtered = append(filtered, mbr)
				}
			}
			members = filtered
		}
	}

	applyMemberOrdering(members, ordering)
	return members, nil
}

func applyMemberOrdering(members []member.Member, ordering []core.DBOrdering) {
	for i := len(ordering) - 1; i >= 0; i-- {
		ord := ordering[i]
		switch ord.Field {
		case "id":
			sort.SliceStable(members, func(i, j int) bool {
				if ord.Ascending {
					return members[i].ID < members[j].ID
				}
				return members[i].ID > members[j].ID
			})
		case "name":
			sort.SliceStable(members, func(i, j int) bool {
				if ord.Ascending {
					return members[i].Name < members[j].Name
				}
				return members[i].Name > members[j].Name
			})
		}
	}
}

func (repo *memberRepository) UpdateMember(_ context.Context, mbr member.Member, isActive *bool, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// only save set fields
	orig, ok := repo.db.table[mbr.ID]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	if mbr.Name != "" {
		orig.Name = mbr.Name
	}
	if mbr.Email != "" {
		orig.Email = mbr.Email
	}
	if mbr.Role != 0 {
		orig.Role = mbr.Role
	}
	if mbr.ClassID != nil {
		orig.ClassID = mbr.ClassID
	}
	if mbr.Language != "" {
		orig.Language = mbr.Language
	}
	if mbr.PasswordHash != nil {
		orig.PasswordHash = mbr.PasswordHash
	}
	if isActive != nil {
		orig.SetActive(*isActive)
	}
	if !mbr.LastActive.IsZero() {
		orig.LastActive = mbr.LastActive
	}
	orig.UpdatedAt = mbr.UpdatedAt

	repo.db.table[mbr.ID] = orig
	return *orig, nil
}

func (repo *memberRepository) SetMemberClass(_ context.Context, id int, classID *int, _ ...core.DBExecutor) (member.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	mbr, ok := repo.db.table[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	mbr.ClassID = classID
	mbr.UpdatedAt = time.Now().UTC()
	return *mbr, nil
}

func (repo *memberRepository) UpdateOrCreateMember(ctx context.Context, mbr member.Member, exec ...core.DBExecutor) (member.Member, error) {
	existing, err := repo.GetMember(ctx, member.GetFilter{TelegramID: mbr.TelegramID})
	if err != nil {
		if err == member.ErrNotFound {
			return repo.CreateMember(ctx, mbr, exec...)
		}
		return member.Member{}, err
	}

	// existing members keep their name and language; only role, class and
	// active flag are realigned
	upd := member.Member{
		ID:        existing.ID,
		Role:      mbr.Role,
		ClassID:   mbr.ClassID,
		UpdatedAt: mbr.UpdatedAt,
	}
	return repo.UpdateMember(ctx, upd, mbr.IsActive, exec...)
}

func (repo *memberRepository) DeleteMembersByID(_ context.Context, ids []int, _ ...core.DBExecutor) error {
	repo.attTbl.RLock()
	hasHistory := make(map[int]bool)
	for _, rec := range repo.attTbl.table {
		hasHistory[rec.MemberID] = true
	}
	repo.attTbl.RUnlock()

	repo.db.Lock()
	defer repo.db.Unlock()

	// all or nothing
	for _, id := range ids {
		if hasHistory[id] {
			return member.ErrHasAttendance
		}
	}
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
