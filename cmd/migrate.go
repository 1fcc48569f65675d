package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mouse-blink/subshift/internal/domain"
)

var migrateParallelFlag int
var migrateDryRunFlag bool
var migrateBackupFlag bool

// migrateCmd represents the migrate command.
var migrateCmd = newMigrateCmd()

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [paths...]",
		Short: "Rewrite subTest loops to pytest parametrize",
		Long:  migrateLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Migrate(cmd.Context(), domain.MigrateArgs{
				AnalyzeArgs: domain.AnalyzeArgs{
					Paths:     parsePaths(args),
					Recursive: viper.GetBool(recursiveConfigKey),
					Exclude:   viper.GetStringSlice(excludeConfigKey),
					Threads:   uint(viper.GetInt(parallelConfigKey)),
				},
				DryRun: migrateDryRunFlag,
				Backup: viper.GetBool(backupConfigKey),
			})
		},
	}

	configureMigrateFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func configureMigrateFlags(cmd *cobra.Command) {
	configureParallelFlag(cmd, &migrateParallelFlag)

	cmd.Flags().BoolVarP(&migrateDryRunFlag, dryRunFlagName, "n", false, "print diffs without writing any file")

	cmd.Flags().BoolVar(&migrateBackupFlag, backupFlagName, viper.GetBool(backupConfigKey), "write a .bak copy before rewriting each file")
	bindFlagToConfig(cmd.Flags().Lookup(backupFlagName), backupConfigKey)
}
