package main

import (
	"github.com/pressly/goose/v3"

	"github.com/codeabode/backend/storage/database"
)

var gooseRunFunc = goose.Run // mockable

// migrate runs goose against the migrations embedded in the database package.
func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db, database.MigrationsDir, arguments...)
}
