package main

import (
	"github.com/trezcool/soko/storage/database"
)

func (cli *commandLine) migrate(args []string) error {
	return database.Migrate(cli.db, migrateRunFunc, args[0], args[1:]...)
}
