package main

import (
	"context"
	"fmt"

	"github.com/codeabode/backend/core/build"
)

// inlineBuilds runs builds right away, in the calling goroutine.
// The admin process has no build workers.
type inlineBuilds struct {
	builder builder
	last    build.Result
}

type builder interface {
	Build(ctx context.Context, projectID int) (build.Result, error)
}

func (ib *inlineBuilds) Enqueue(projectID int) error {
	res, err := ib.builder.Build(context.Background(), projectID)
	if err != nil {
		return err
	}
	ib.last = res
	return nil
}

func (cli *commandLine) rebuild(projectID int) error {
	if _, err := cli.projects.ForceRebuild(context.Background(), projectID, cli.tx); err != nil {
		return err
	}
	if cli.builds == nil {
		fmt.Fprintf(cli.out, "project %d queued\n", projectID)
		return nil
	}
	fmt.Fprintf(cli.out, "project %d: %s\n", projectID, cli.builds.last.Status)
	if cli.builds.last.Log != "" {
		fmt.Fprintln(cli.out, cli.builds.last.Log)
	}
	return nil
}
