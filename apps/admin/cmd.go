package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/project"
	"github.com/codeabode/backend/core/student"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB // only needed by migrate
	tx       core.Transactor
	validate *validator.Validate
	accounts account.ServiceInterface
	gate     *access.Gate
	students *student.Service
	planner  *student.Planner
	projects *project.Service
	builds   *inlineBuilds // nil when builds are queued elsewhere
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -name NAME [-email EMAIL]  - create a tutor account; the password is prompted")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME                      - set a new password and log the account out everywhere")
	fmt.Fprintln(cli.out, "  addowner -username USERNAME -student ID               - let an account see a student")
	fmt.Fprintln(cli.out, "  removeowner -username USERNAME -student ID            - stop an account from seeing a student")
	fmt.Fprintln(cli.out, "  students                                              - list students with their owners")
	fmt.Fprintln(cli.out, "  addstudent -name NAME -age AGE -level LEVEL -goal GOAL [-notes NOTES]")
	fmt.Fprintln(cli.out, "  curriculum -student ID [-brief TEXT]                  - plan the upcoming classes of a student")
	fmt.Fprintln(cli.out, "  refine -student ID -feedback TEXT                     - re-plan upcoming classes after feedback")
	fmt.Fprintln(cli.out, "  classwork -class ID [-notes TEXT]                     - generate the worksheet of a class")
	fmt.Fprintln(cli.out, "  homework -class ID [-notes TEXT]                      - generate the homework of a class")
	fmt.Fprintln(cli.out, "  rebuild -project ID                                   - build a failed project again, right away")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                - run a goose command on the database")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := cli.newFlagSet("adduser")
	addUserUname := addUserCmd.String("username", "", "The account's username. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The name shown to the account's owner.")
	addUserEmail := addUserCmd.String("email", "", "Optional. Where password change notices are sent.")

	resetPasswordCmd := cli.newFlagSet("resetpassword")
	resetPasswordUname := resetPasswordCmd.String("username", "", "The account's username. The password will be prompted next.")

	addOwnerCmd := cli.newFlagSet("addowner")
	addOwnerUname := addOwnerCmd.String("username", "", "The account's username.")
	addOwnerStudent := addOwnerCmd.Int("student", 0, "The student's ID.")

	removeOwnerCmd := cli.newFlagSet("removeowner")
	removeOwnerUname := removeOwnerCmd.String("username", "", "The account's username.")
	removeOwnerStudent := removeOwnerCmd.Int("student", 0, "The student's ID.")

	addStudentCmd := cli.newFlagSet("addstudent")
	addStudentName := addStudentCmd.String("name", "", "The student's name.")
	addStudentAge := addStudentCmd.Int("age", 0, "The student's age.")
	addStudentLevel := addStudentCmd.String("level", "", "What the student can already do.")
	addStudentGoal := addStudentCmd.String("goal", "", "What the student wants to build.")
	addStudentNotes := addStudentCmd.String("notes", "", "Optional notes for the tutor.")

	curriculumCmd := cli.newFlagSet("curriculum")
	curriculumStudent := curriculumCmd.Int("student", 0, "The student's ID.")
	curriculumBrief := curriculumCmd.String("brief", "", "Optional extra instructions for the plan.")

	refineCmd := cli.newFlagSet("refine")
	refineStudent := refineCmd.Int("student", 0, "The student's ID.")
	refineFeedback := refineCmd.String("feedback", "", "How the last classes went.")

	classworkCmd := cli.newFlagSet("classwork")
	classworkClass := classworkCmd.Int("class", 0, "The class ID.")
	classworkNotes := classworkCmd.String("notes", "", "Optional instructions for the worksheet.")

	homeworkCmd := cli.newFlagSet("homework")
	homeworkClass := homeworkCmd.Int("class", 0, "The class ID.")
	homeworkNotes := homeworkCmd.String("notes", "", "Optional instructions for the homework.")

	rebuildCmd := cli.newFlagSet("rebuild")
	rebuildProject := rebuildCmd.Int("project", 0, "The project ID.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserUname == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserName, *addUserEmail, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "addowner":
		if err := addOwnerCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addOwnerUname == "" || *addOwnerStudent < 1 {
			addOwnerCmd.Usage()
			return errHelp
		}
		return cli.addOwner(*addOwnerUname, *addOwnerStudent)

	case "removeowner":
		if err := removeOwnerCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *removeOwnerUname == "" || *removeOwnerStudent < 1 {
			removeOwnerCmd.Usage()
			return errHelp
		}
		return cli.removeOwner(*removeOwnerUname, *removeOwnerStudent)

	case "students":
		return cli.listStudents()

	case "addstudent":
		if err := addStudentCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.addStudent(student.NewStudent{
			Name:      *addStudentName,
			Age:       *addStudentAge,
			Level:     *addStudentLevel,
			FinalGoal: *addStudentGoal,
			Notes:     *addStudentNotes,
		})

	case "curriculum":
		if err := curriculumCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *curriculumStudent < 1 {
			curriculumCmd.Usage()
			return errHelp
		}
		return cli.curriculum(*curriculumStudent, *curriculumBrief)

	case "refine":
		if err := refineCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *refineStudent < 1 || strings.TrimSpace(*refineFeedback) == "" {
			refineCmd.Usage()
			return errHelp
		}
		return cli.refine(*refineStudent, *refineFeedback)

	case "classwork":
		if err := classworkCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *classworkClass < 1 {
			classworkCmd.Usage()
			return errHelp
		}
		return cli.classWork(student.WorkClasswork, *classworkClass, *classworkNotes)

	case "homework":
		if err := homeworkCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *homeworkClass < 1 {
			homeworkCmd.Usage()
			return errHelp
		}
		return cli.classWork(student.WorkHomework, *homeworkClass, *homeworkNotes)

	case "rebuild":
		if err := rebuildCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *rebuildProject < 1 {
			rebuildCmd.Usage()
			return errHelp
		}
		return cli.rebuild(*rebuildProject)

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

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
