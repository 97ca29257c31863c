package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/perfgo/testretry/cli/runner"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "testretry"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Run Go tests and retry the ones that fail",
			// class globs may contain {a,b} alternatives
			DisableSliceFlagSeparator: true,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.BoolFlag{
					Name:    "no-color",
					Usage:   "Disable coloured output",
					EnvVars: []string{"NO_COLOR"},
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				if ctx.Bool("no-color") {
					color.NoColor = true
				}
				return nil
			},
		},
	}

	testFlags := append(policyFlags(),
		runner.ParallelFlag(),
		&cli.PathFlag{
			Name:    "metrics-file",
			Usage:   "Write Prometheus textfile metrics of the run to this path",
			EnvVars: []string{"TESTRETRY_METRICS_FILE"},
		},
	)
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "test",
		Usage:     "Run the tests of a package, retrying failed tests according to the retry policy",
		ArgsUsage: "<package> [build flags] [test flags]",
		Action:    app.runTest,
		Flags:     testFlags,
		Description: `Builds the test binary of a single package, runs it and re-executes
failed tests on their own until they pass, the retry limit is reached or the
failure budget is exhausted.

Examples:
  testretry test --max-retries 2 ./pkg/store
  testretry test --max-retries 3 --max-failures 5 ./pkg/store -race -timeout=5m
  testretry test --config ci/retry.yaml . -- -short

Tests are tagged for --include-annotation / --exclude-annotation with a
directive in their doc comment:

  //testretry:tag Flaky
  func TestNetwork(t *testing.T) { ... }

The same directive in the package doc comment of a _test.go file tags
every test of the package.`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous test runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "Filter by relative path (e.g., pkg/store)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "View the verdict of a test run from history",
		ArgsUsage:       "[ID|INDEX] [--test <glob>] [--output]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `View the verdict of a test run from history.

Arguments:
  0              View last test run (default)
  -1             View 2nd last test run
  -2             View 3rd last test run
  <id>           View test run matching the ID prefix
  --test <glob>  Only show tests whose Package.TestName matches the glob
  --output       Print the recorded stdout of the run afterwards

Examples:
  testretry view                      # View last test run
  testretry view -1                   # View 2nd last test run
  testretry view 3f2a --test '*Store*'`,
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
