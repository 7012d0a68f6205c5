package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
	"github.com/trezcool/soko/core/user"
)

// addUser updates or creates an active user.User.
// New students get a balance holding the welcome bonus.
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.findUser(ctx, uname, email)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return errors.Wrap(err, "finding user")
	}
	isNew := err != nil
	wasActive := !isNew && usr.IsActive

	now := time.Now().UTC()
	if isNew {
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}
	if isAdmin {
		usr.Roles = append([]string(nil), user.AdminRoles...)
	} else if len(usr.Roles) == 0 {
		usr.Roles = []string{user.RoleStudent}
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}

	if !isNew {
		if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
			return errors.Wrap(err, "updating user")
		}
		if !wasActive {
			cli.courseSvc.InvalidateAllStats(ctx)
		}
		return nil
	}

	var bal billing.Balance
	err = cli.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if usr, err = cli.usrRepo.CreateUser(ctx, usr, exec); err != nil {
			return errors.Wrap(err, "creating user")
		}
		if !usr.IsStudent() {
			return nil
		}
		bal, err = cli.billingSvc.OpenBalance(ctx, usr.ID, exec)
		return errors.Wrap(err, "opening balance")
	})
	if err != nil {
		return err
	}
	cli.courseSvc.InvalidateAllStats(ctx)
	if usr.IsStudent() {
		cli.billingSvc.SendWelcome(usr, bal)
	}
	cli.logger.Info("user created", map[string]interface{}{"id": usr.ID, "username": usr.Username})
	return nil
}

// findUser looks the user up by username first, then by email.
func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err == nil || errors.Cause(err) != user.ErrNotFound {
		return usr, err
	}
	return cli.usrSvc.GetByEmail(ctx, email)
}
