package main

import (
	"database/sql"
	"flag"
	"fmt"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/storage/database"
)

var (
	readPasswordFunc                       = term.ReadPassword // mockable
	migrateRunFunc   database.GooseRunFunc = nil               // mockable, nil runs goose

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sql.DB
	tx         core.Transactor
	usrRepo    user.Repository
	usrSvc     user.ServiceInterface
	courseSvc  *course.Service
	billingSvc *billing.Service
	logger     core.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-admin] - add (or update) an active user, the password is prompted")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  addbonus -email EMAIL -amount AMOUNT - credit bonuses to a student's balance, eg: -amount 150.50")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command: up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every admin role to the user.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	addBonusCmd := flag.NewFlagSet("addbonus", flag.ContinueOnError)
	addBonusEmail := addBonusCmd.String("email", "", "The student's email.")
	addBonusAmount := addBonusCmd.String("amount", "", "The amount to credit, eg: 150.50")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "addbonus":
		if err := addBonusCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addBonusEmail == "" || *addBonusAmount == "" {
			addBonusCmd.Usage()
			return errHelp
		}
		amount, err := core.ParseMoney(*addBonusAmount)
		if err != nil {
			return err
		}
		return cli.addBonus(*addBonusEmail, amount)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}
