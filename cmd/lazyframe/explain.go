package main

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/grafana/lazyframe/pkg/engine"
)

// explainCommand prints a query plan before and after optimization.
type explainCommand struct {
	flags *globalFlags
	file  *string
}

func (cmd *explainCommand) run(_ *kingpin.ParseContext) error {
	q, err := engine.LoadQuery(*cmd.file)
	if err != nil {
		return err
	}
	plan, err := q.Plan()
	if err != nil {
		return err
	}
	e, err := newEngine(cmd.flags, nil)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println("Logical plan:")
	fmt.Print(engine.FormatPlan(plan))

	optimized, err := e.Explain(plan)
	if err != nil {
		return err
	}
	fmt.Println()
	bold.Println("Optimized plan:")
	fmt.Print(optimized)
	return nil
}

func addExplainCommand(app *kingpin.Application, flags *globalFlags) {
	cmd := &explainCommand{flags: flags}
	explain := app.Command("explain", "Print the plan of a query before and after optimization.").Action(cmd.run)
	cmd.file = explain.Arg("query", "YAML file describing the query.").Required().ExistingFile()
}
