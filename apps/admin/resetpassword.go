package main

import (
	"context"
	"time"

	"github.com/beshoyehab/schoolbot/core/member"
)

func (cli *commandLine) resetPassword(tid int64, pwd string) error {
	ctx := context.Background()
	mbr, err := cli.mbrRepo.GetMember(ctx, member.GetFilter{TelegramID: tid})
	if err != nil {
		return err
	}
	if err = mbr.SetPassword(pwd); err != nil {
		return err
	}
	mbr.UpdatedAt = time.Now().UTC()
	_, err = cli.mbrRepo.UpdateMember(ctx, mbr, nil)
	return err
}
