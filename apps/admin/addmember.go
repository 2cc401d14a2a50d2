package main

import (
	"context"
	"fmt"
	"time"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

// addMember updates or creates a member.Member
func (cli *commandLine) addMember(tid int64, name string, role member.Role, classID *int, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	if !role.Valid() {
		return fmt.Errorf("invalid role %d", role)
	}

	now := time.Now().UTC()
	mbr, err := cli.mbrRepo.GetMember(ctx, member.GetFilter{TelegramID: tid})
	if err != nil {
		if err != member.ErrNotFound {
			return err
		}
		mbr = member.Member{
			TelegramID: tid,
			CreatedAt:  now,
		}
	}
	mbr.Name = name
	mbr.Role = role
	mbr.ClassID = classID
	mbr.UpdatedAt = now
	mbr.SetActive(true)
	if pwd != "" {
		if err = mbr.SetPassword(pwd); err != nil {
			return err
		}
	}

	if mbr.ID == 0 {
		_, err = cli.mbrRepo.CreateMember(ctx, mbr)
	} else {
		_, err = cli.mbrRepo.UpdateMember(ctx, mbr, mbr.IsActive)
	}
	return err
}
