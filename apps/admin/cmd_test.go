package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
	dummydb "github.com/beshoyehab/schoolbot/storage/database/dummy"
)

var mbrRepo member.Repository

func setup(t *testing.T) *commandLine {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("opening dummy db: %v", err)
	}
	mbrRepo = dummydb.NewMemberRepository(db)

	conf := &core.Config{}
	conf.DefaultLanguage = "ar"

	// start CLI
	return &commandLine{
		conf:    conf,
		mbrRepo: mbrRepo,
	}
}

func createMember(t *testing.T, name string, tid int64, pwd string) member.Member {
	t.Helper()
	mbr := member.Member{TelegramID: tid, Name: name, Role: member.RoleStudent}
	mbr.SetActive(true)
	if err := mbr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}
	mbr, err := mbrRepo.CreateMember(context.Background(), mbr)
	if err != nil {
		t.Fatalf("CreateMember(): %v", err)
	}
	return mbr
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "attendance", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	mbr := createMember(t, "Mina", 100, "mdr")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "telegram id but no password", args: []string{"resetpassword", "-telegram-id", "100"}, wantErr: errHelp},
		{name: "member not found", args: []string{"resetpassword", "-telegram-id", "999"}, extra: extra{pwd: "lol"}, wantErr: member.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-telegram-id", "100"}, extra: extra{pwd: "lol"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshed, err := mbrRepo.GetMember(context.Background(), member.GetFilter{ID: mbr.ID})
				if err != nil {
					t.Fatalf("GetMember(): %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, mbr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addMember(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("s3cret"), nil }

	// create
	args := []string{"admin", "addmember", "-telegram-id", "200", "-name", "Sara", "-role", "2", "-class", "1"}
	if err := cli.run(args); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}
	mbr, err := mbrRepo.GetMember(ctx, member.GetFilter{TelegramID: 200})
	if err != nil {
		t.Fatalf("GetMember(): %v", err)
	}
	if mbr.Name != "Sara" || mbr.Role != member.RoleTeacher || mbr.ClassID == nil || *mbr.ClassID != 1 {
		t.Errorf("addMember() = %+v", mbr)
	}
	if err = mbr.CheckPassword("s3cret"); err != nil {
		t.Error("addMember() did not set the password")
	}

	// update in place
	args = []string{"admin", "addmember", "-telegram-id", "200", "-name", "Sara M.", "-role", "3"}
	if err = cli.run(args); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}
	updated, err := mbrRepo.GetMember(ctx, member.GetFilter{TelegramID: 200})
	if err != nil {
		t.Fatalf("GetMember(): %v", err)
	}
	if updated.ID != mbr.ID || updated.Name != "Sara M." || updated.Role != member.RoleLeader {
		t.Errorf("addMember() = %+v, want update of %d", updated, mbr.ID)
	}

	// bad role
	args = []string{"admin", "addmember", "-telegram-id", "201", "-name", "Omar", "-role", "9"}
	if err = cli.run(args); err == nil {
		t.Error("cli.run() accepted an invalid role")
	}

	// missing flags
	if err = cli.run([]string{"admin", "addmember"}); err != errHelp {
		t.Errorf("cli.run() error = %v, wantErr %v", err, errHelp)
	}
}

func Test_commandLine_syncSeed(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	classID := 1
	cli.conf.SeedMembers = []core.SeedMember{
		{TelegramID: 300, Role: int(member.RoleAdmin)},
		{TelegramID: 301, Role: int(member.RoleTeacher), ClassID: &classID},
	}

	if err := cli.run([]string{"admin", "syncseed"}); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}
	admin, err := mbrRepo.GetMember(ctx, member.GetFilter{TelegramID: 300})
	if err != nil {
		t.Fatalf("GetMember(): %v", err)
	}
	if admin.Role != member.RoleAdmin || admin.IsActive == nil || !*admin.IsActive {
		t.Errorf("syncSeed() = %+v", admin)
	}

	// running again realigns instead of duplicating
	cli.conf.SeedMembers[0].Role = int(member.RoleManager)
	if err = cli.run([]string{"admin", "syncseed"}); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}
	realigned, err := mbrRepo.GetMember(ctx, member.GetFilter{TelegramID: 300})
	if err != nil {
		t.Fatalf("GetMember(): %v", err)
	}
	if realigned.ID != admin.ID || realigned.Role != member.RoleManager {
		t.Errorf("syncSeed() = %+v, want realigned %d", realigned, admin.ID)
	}
}
