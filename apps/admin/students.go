package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeabode/backend/core/student"
)

func (cli *commandLine) addOwner(uname string, studentID int) error {
	ctx := context.Background()
	acc, err := cli.accounts.GetByUsername(ctx, uname)
	if err != nil {
		return err
	}
	added, err := cli.gate.AddOwner(ctx, acc.ID, studentID)
	if err != nil {
		return err
	}
	if !added {
		fmt.Fprintf(cli.out, "%s already owns student %d\n", acc.Username, studentID)
		return nil
	}
	fmt.Fprintf(cli.out, "%s now owns student %d\n", acc.Username, studentID)
	return nil
}

func (cli *commandLine) removeOwner(uname string, studentID int) error {
	ctx := context.Background()
	acc, err := cli.accounts.GetByUsername(ctx, uname)
	if err != nil {
		return err
	}
	removed, err := cli.gate.RemoveOwner(ctx, acc.ID, studentID)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(cli.out, "%s does not own student %d\n", acc.Username, studentID)
		return nil
	}
	fmt.Fprintf(cli.out, "%s no longer owns student %d\n", acc.Username, studentID)
	return nil
}

func (cli *commandLine) listStudents() error {
	students, err := cli.students.List(context.Background())
	if err != nil {
		return err
	}
	for _, s := range students {
		fmt.Fprintf(cli.out, "%d\t%s\t%s\n", s.ID, s.Name, strings.Join(s.Owners, ","))
	}
	return nil
}

func (cli *commandLine) addStudent(ns student.NewStudent) error {
	if err := ns.Validate(cli.validate); err != nil {
		return err
	}
	s, err := cli.students.Create(context.Background(), ns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "student %d created: %s\n", s.ID, s.Name)
	return nil
}
