package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/grafana/lazyframe/pkg/engine"
)

// runCommand executes a query and prints its result.
type runCommand struct {
	flags   *globalFlags
	file    *string
	limit   *int
	profile *bool
	plan    *bool
	timeout *time.Duration
}

func (cmd *runCommand) run(_ *kingpin.ParseContext) error {
	q, err := engine.LoadQuery(*cmd.file)
	if err != nil {
		return err
	}
	plan, err := q.Plan()
	if err != nil {
		return err
	}
	e, err := newEngine(cmd.flags, func(cfg *engine.Config) {
		if *cmd.profile {
			cfg.Executor.Profile = true
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *cmd.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *cmd.timeout)
		defer cancel()
	}

	res, err := e.Collect(ctx, plan)
	if err != nil {
		return err
	}
	defer res.Release()

	bold := color.New(color.Bold)
	if *cmd.plan {
		bold.Println("Optimized plan:")
		fmt.Print(res.Plan)
		fmt.Println()
	}
	printRecord(res, *cmd.limit)
	if len(res.Profile) > 0 {
		fmt.Println()
		bold.Println("Profile:")
		printProfile(res.Profile)
	}
	return nil
}

func printRecord(res engine.Result, limit int) {
	rec := res.Record
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	names := make([]string, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		names[i] = f.Name + " (" + f.Type.String() + ")"
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	rows := int(rec.NumRows())
	if limit >= 0 && rows > limit {
		rows = limit
	}
	values := make([]string, rec.NumCols())
	for i := 0; i < rows; i++ {
		for j, col := range rec.Columns() {
			if col.IsNull(i) {
				values[j] = "null"
				continue
			}
			values[j] = col.ValueStr(i)
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
	_ = w.Flush()

	if rows < int(rec.NumRows()) {
		fmt.Printf("... %s more rows\n", humanize.Comma(rec.NumRows()-int64(rows)))
	}
	fmt.Printf(
		"%s rows in %v (optimization: %v, execution: %v)\n",
		humanize.Comma(res.Stats.Rows),
		res.Stats.Total.Round(time.Microsecond),
		res.Stats.Optimization.Round(time.Microsecond),
		res.Stats.Execution.Round(time.Microsecond),
	)
}

func printProfile(entries []engine.ProfileEntry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "node\tstart\tend\tduration")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\n", e.Node, e.Start, e.End, e.End-e.Start)
	}
	_ = w.Flush()
}

func addRunCommand(app *kingpin.Application, flags *globalFlags) {
	cmd := &runCommand{flags: flags}
	run := app.Command("run", "Run a query and print its result.").Action(cmd.run)
	cmd.file = run.Arg("query", "YAML file describing the query.").Required().ExistingFile()
	cmd.limit = run.Flag("limit", "Maximum number of rows to print. Negative prints all rows.").Default("25").Int()
	cmd.profile = run.Flag("profile", "Print the time spent in every operator.").Bool()
	cmd.plan = run.Flag("plan", "Print the optimized plan before the result.").Bool()
	cmd.timeout = run.Flag("timeout", "Cancel the query after this duration.").Default("0s").Duration()
}
