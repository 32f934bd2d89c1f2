// Command lazyframe optimizes and runs queries described by YAML files.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/lazyframe/pkg/engine"
)

// globalFlags are shared by all commands.
type globalFlags struct {
	configFile string
	logLevel   dslog.Level
}

func main() {
	app := kingpin.New("lazyframe", "Optimize and run lazy dataframe queries.")
	app.HelpFlag.Short('h')

	flags := &globalFlags{}
	_ = flags.logLevel.Set("warn")
	app.Flag("config.file", "YAML file with engine settings.").ExistingFileVar(&flags.configFile)
	app.Flag("log.level", "Only log messages with the given severity or above. One of: [debug, info, warn, error]").SetValue(&flags.logLevel)

	addExplainCommand(app, flags)
	addRunCommand(app, flags)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

func newLogger(logLevel dslog.Level) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, logLevel.Option)
	logger = log.With(logger, "caller", log.Caller(3))
	return logger
}

// newEngine creates an engine from the config file in flags. The callback
// may adjust the configuration before the engine is created.
func newEngine(flags *globalFlags, adjust func(*engine.Config)) (*engine.Engine, error) {
	cfg := engine.DefaultConfig()
	if flags.configFile != "" {
		var err error
		if cfg, err = engine.LoadConfig(flags.configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if adjust != nil {
		adjust(&cfg)
	}
	return engine.New(engine.Params{
		Logger:     newLogger(flags.logLevel),
		Registerer: prometheus.NewRegistry(),
		Config:     cfg,
	})
}
