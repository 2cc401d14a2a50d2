package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	conf    *core.Config
	mbrRepo member.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
	fmt.Println("  addmember -telegram-id ID -name NAME [-role ROLE] [-class ID] - update or create a member")
	fmt.Println("  resetpassword -telegram-id ID - reset a member's password")
	fmt.Println("  syncseed - provision the members declared in the USERS setting")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addMemberCmd := flag.NewFlagSet("addmember", flag.ExitOnError)
	addMemberTID := addMemberCmd.Int64("telegram-id", 0, "The member's telegram id.")
	addMemberName := addMemberCmd.String("name", "", "The member's display name.")
	addMemberRole := addMemberCmd.Int("role", int(member.RoleStudent), "The member's rank, 1 (Student) to 5 (Admin).")
	addMemberClass := addMemberCmd.Int("class", 0, "The member's class id, if any.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordTID := resetPasswordCmd.Int64("telegram-id", 0, "The member's telegram id. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addmember":
		if err := addMemberCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addMemberTID == 0 || *addMemberName == "" {
			addMemberCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password (leave empty for a telegram-only member):")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		var classID *int
		if *addMemberClass != 0 {
			classID = addMemberClass
		}
		return cli.addMember(*addMemberTID, *addMemberName, member.Role(*addMemberRole), classID, string(pwd))
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordTID == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordTID, string(pwd))
	case "syncseed":
		return cli.syncSeed()
	default:
		cli.printUsage()
		return errHelp
	}
}
