package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env) {
	env := testutil.NewEnv(t)
	return &commandLine{
		tx:         env.Tx,
		usrRepo:    env.UserRepo,
		usrSvc:     env.UserSvc,
		courseSvc:  env.CourseSvc,
		billingSvc: env.BillingSvc,
		logger:     env.Logger,
	}, env
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var ran []string
	migrateRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}
	defer func() { migrateRunFunc = nil }()

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "running migration command \"lol\": \"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "running migration command \"up-to\": up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "running migration command \"up-to\": version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "running migration command \"create\": create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "running migration command \"down-to\": version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, []string{"up", "up-by-one", "up-to", "down", "down-to", "redo", "reset", "status", "version", "create", "fix"}, ran)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env := setup(t)
	ctx := context.Background()

	existing := testutil.CreateUser(t, env.UserRepo, "Old", "old", "old@test.cd", "OldC@t123", []string{user.RoleStudent}, false)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email missing", args: []string{"adduser", "-username", "hero"}, extra: extra{pwd: "lol"}, wantErr: errHelp},
		{name: "password missing", args: []string{"adduser", "-username", "hero", "-email", "hero@test.cd"}, wantErr: errHelp},
		{name: "student", args: []string{"adduser", "-username", "Hero", "-email", "hero@test.cd"}, extra: extra{pwd: "lol"}},
		{name: "admin", args: []string{"adduser", "-username", "boss", "-email", "boss@test.cd", "-admin"}, extra: extra{pwd: "lol"}},
		{name: "existing user", args: []string{"adduser", "-username", "other", "-email", "old@test.cd", "-admin"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, cli.run(args))
		})
	}

	hero, err := env.UserSvc.GetByUsernameOrEmail(ctx, "hero")
	require.NoError(t, err)
	assert.True(t, hero.IsActive)
	assert.Equal(t, []string{user.RoleStudent}, hero.Roles)
	assert.NoError(t, hero.CheckPassword("lol"))
	bal, err := env.BillingSvc.GetBalance(ctx, hero.ID)
	require.NoError(t, err)
	assert.Equal(t, env.Conf.Billing.WelcomeBonus, bal.Amount)

	boss, err := env.UserSvc.GetByUsernameOrEmail(ctx, "boss")
	require.NoError(t, err)
	assert.True(t, boss.IsAdmin())
	_, err = env.BillingSvc.GetBalance(ctx, boss.ID)
	assert.Equal(t, billing.ErrBalanceNotFound, errors.Cause(err))

	old, err := env.UserSvc.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "old", old.Username)
	assert.True(t, old.IsActive)
	assert.True(t, old.IsAdmin())
	assert.NoError(t, old.CheckPassword("lmao"))

	// only the new student was welcomed
	assert.Len(t, env.Mail.SentMessages(), 1)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env := setup(t)

	usr := testutil.CreateUser(t, env.UserRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", "AWE"}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)

			refreshedUsr, err := env.UserSvc.GetByID(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.NoError(t, refreshedUsr.CheckPassword(pwd))
		})
	}
}

func Test_commandLine_addBonus(t *testing.T) {
	cli, env := setup(t)

	stud := testutil.CreateStudent(t, env, "S1", "s1", "s1@test.cd", core.NewMoney(10, 0))
	testutil.CreateAdmin(t, env, "Admin", "admin", "admin@test.cd")

	tests := []cliTest{
		{name: "no args", args: []string{"addbonus"}, wantErr: errHelp},
		{name: "amount missing", args: []string{"addbonus", "-email", stud.Email}, wantErr: errHelp},
		{name: "invalid amount", args: []string{"addbonus", "-email", stud.Email, "-amount", "1.234"}, wantErrStr: "invalid amount"},
		{name: "malformed amount", args: []string{"addbonus", "-email", stud.Email, "-amount", "--5"}, wantErrStr: "invalid amount"},
		{name: "amount out of range", args: []string{"addbonus", "-email", stud.Email, "-amount", "100000000"}, wantErrStr: "invalid amount"},
		{name: "non-positive amount", args: []string{"addbonus", "-email", stud.Email, "-amount", "0"}, wantErr: billing.ErrInvalidAmount},
		{name: "balance limit", args: []string{"addbonus", "-email", stud.Email, "-amount", "99999999.99"}, wantErr: billing.ErrBalanceLimit},
		{name: "user not found", args: []string{"addbonus", "-email", "lol@test.cd", "-amount", "5"}, wantErr: user.ErrNotFound},
		{name: "no balance", args: []string{"addbonus", "-email", "admin@test.cd", "-amount", "5"}, wantErr: billing.ErrBalanceNotFound},
		{name: "added", args: []string{"addbonus", "-email", "S1@test.cd", "-amount", "5.25"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}

	bal, err := env.BillingSvc.GetBalance(context.Background(), stud.ID)
	require.NoError(t, err)
	assert.Equal(t, core.NewMoney(15, 25), bal.Amount)
}
