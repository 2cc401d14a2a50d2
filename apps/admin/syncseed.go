package main

import (
	"context"

	"github.com/beshoyehab/schoolbot/core/member"
)

// syncSeed provisions the members declared in configuration, same as the API
// does at startup. Handy after editing USERS without redeploying.
func (cli *commandLine) syncSeed() error {
	svc := member.NewService(cli.db, cli.mbrRepo, cli.conf)
	return svc.SyncSeed(context.Background(), cli.conf.SeedMembers)
}
