// Package cmd provides the root command and CLI setup for subshift.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mouse-blink/subshift/internal/adapter"
	"github.com/mouse-blink/subshift/internal/controller"
	"github.com/mouse-blink/subshift/internal/domain"
	m "github.com/mouse-blink/subshift/internal/model"
)

var pythonFileAdapter adapter.PythonFileAdapter
var fsAdapter adapter.SourceFSAdapter
var reportStore adapter.ReportStore
var engine domain.Engine
var workflow domain.Workflow
var ui controller.UI

// reportPathFlag is a root-level flag shared by commands that read/write the
// decision report.
var reportPathFlag string

// excludePatterns is a root-level flag that filters files for applicable commands.
var excludePatterns []string

// recursiveFlag controls whether directory arguments are scanned recursively.
var recursiveFlag bool

// logFileFlag and verboseFlag control the file logger.
var logFileFlag string
var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewSimpleUI(rootCmd)
	pythonFileAdapter = adapter.NewLocalPythonFileAdapter()
	fsAdapter = adapter.NewLocalSourceFSAdapter(pythonFileAdapter)
	reportStore = adapter.NewReportStore()
	engine = domain.NewEngine(pythonFileAdapter, fsAdapter)
	workflow = domain.NewWorkflow(
		fsAdapter,
		reportStore,
		ui,
		engine,
	)
}

const pathArgsHelp = `Paths may be files or directories:
  - .                 scan the current directory
  - tests/            scan the tests directory
  - tests/test_db.py  analyze a single test file
Only files named test_*.py or *_test.py are considered.`

const rootLongDescription = `Subshift analyzes Python unittest suites that drive assertions through
subTest loops and migrates them to pytest parametrization where that is
provably safe, falling back to pytest-subtests otherwise.

` + pathArgsHelp

const analyzeLongDescription = `Analyze test files and print the per-function strategy decisions with the
evidence behind each one (default: current directory).

` + pathArgsHelp

const migrateLongDescription = `Rewrite test files according to the reconciled strategy decisions. Functions
whose loop source cannot be resolved are converted to pytest-subtests instead
of parametrize; files are never left half-rewritten.

` + pathArgsHelp

const listLongDescription = `List the Python test files that analysis would consider.

` + pathArgsHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subshift",
		Short: "Migrate unittest subTest loops to pytest parametrize",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(logFileFlag, verboseFlag || viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportPathFlag, reportFlagName, "o",
			viper.GetString(reportFlagName),
			"path for the decision report (.json or .yaml)",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(reportFlagName), reportFlagName)

	cmd.PersistentFlags().StringArrayVarP(&excludePatterns, excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "exclude files matching regex (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(excludeFlagName), excludeConfigKey)

	cmd.PersistentFlags().BoolVarP(&recursiveFlag, recursiveFlagName, "r", viper.GetBool(recursiveConfigKey), "descend into subdirectories")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(recursiveFlagName), recursiveConfigKey)

	cmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "path of the log file")
	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log at debug level")
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	if len(args) == 0 {
		return []m.Path{"."}
	}

	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}
