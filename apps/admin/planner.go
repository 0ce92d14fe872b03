package main

import (
	"context"
	"fmt"

	"github.com/codeabode/backend/core/student"
)

func (cli *commandLine) printCurriculum(c student.Curriculum) {
	fmt.Fprintf(cli.out, "level: %s\ngoal: %s\n", c.CurrentLevel, c.FinalGoal)
	for i, cls := range c.Classes {
		fmt.Fprintf(cli.out, "%d. [%s] %s\n", i+1, cls.Status, cls.Name)
	}
}

func (cli *commandLine) curriculum(studentID int, brief string) error {
	c, err := cli.planner.Generate(context.Background(), studentID, brief)
	if err != nil {
		return err
	}
	cli.printCurriculum(c)
	return nil
}

func (cli *commandLine) refine(studentID int, feedback string) error {
	c, err := cli.planner.Refine(context.Background(), studentID, feedback)
	if err != nil {
		return err
	}
	cli.printCurriculum(c)
	return nil
}

func (cli *commandLine) classWork(kind string, classID int, notes string) error {
	var (
		text string
		err  error
	)
	if kind == student.WorkHomework {
		text, err = cli.planner.Homework(context.Background(), classID, notes)
	} else {
		text, err = cli.planner.Classwork(context.Background(), classID, notes)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, text)
	return nil
}
