package main

import (
	"context"
	"fmt"

	"github.com/codeabode/backend/core/account"
)

func (cli *commandLine) addUser(uname, name, email, pwd string) error {
	na := account.NewAccount{Username: uname, Name: name, Email: email, Password: pwd}
	if err := na.Validate(cli.validate); err != nil {
		return err
	}
	acc, err := cli.accounts.Create(context.Background(), na)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "account %d created: %s\n", acc.ID, acc.Username)
	return nil
}

func (cli *commandLine) resetPassword(uname, pwd string) error {
	if len(pwd) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}
	revoked, err := cli.accounts.ResetPassword(context.Background(), uname, pwd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password changed; %d sessions revoked\n", revoked)
	return nil
}
