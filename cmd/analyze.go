package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mouse-blink/subshift/internal/domain"
	m "github.com/mouse-blink/subshift/internal/model"
)

var analyzeParallelFlag int

// analyzeCmd represents the analyze command.
var analyzeCmd = newAnalyzeCmd()

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Analyze subTest loops and print strategy decisions",
		Long:  analyzeLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Analyze(cmd.Context(), domain.AnalyzeArgs{
				Paths:     parsePaths(args),
				Recursive: viper.GetBool(recursiveConfigKey),
				Exclude:   viper.GetStringSlice(excludeConfigKey),
				Report:    m.Path(viper.GetString(reportFlagName)),
				Threads:   uint(viper.GetInt(parallelConfigKey)),
			})
		},
	}

	configureParallelFlag(cmd, &analyzeParallelFlag)

	return cmd
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func configureParallelFlag(cmd *cobra.Command, target *int) {
	cmd.Flags().IntVarP(target, parallelFlagName, "p", viper.GetInt(parallelConfigKey), "number of parallel workers")
	bindFlagToConfig(cmd.Flags().Lookup(parallelFlagName), parallelConfigKey)
}
