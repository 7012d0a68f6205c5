package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/soko/core"
)

// addBonus credits amount to the balance of the user owning email.
func (cli *commandLine) addBonus(email string, amount core.Money) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return errors.Wrap(err, "finding user by email")
	}
	bal, err := cli.billingSvc.AddBonus(ctx, usr.ID, amount)
	if err != nil {
		return errors.Wrap(err, "adding bonus")
	}
	cli.logger.Info("bonus added", map[string]interface{}{"username": usr.Username, "balance": bal.Amount.String()})
	return nil
}
