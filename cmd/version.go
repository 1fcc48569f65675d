package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the subshift version",
		Long:  "Prints the subshift release, the commit it was built from and the Go toolchain version.",
		Run: func(cmd *cobra.Command, _ []string) {
			info, ok := debug.ReadBuildInfo()
			if !ok {
				cmd.Println("subshift (unknown build)")
				return
			}

			release := info.Main.Version
			if release == "" {
				release = "devel"
			}

			cmd.Printf("subshift %s\n", release)
			cmd.Printf("  go:     %s\n", info.GoVersion)

			if rev := buildSetting(info, "vcs.revision"); rev != "" {
				cmd.Printf("  commit: %s\n", rev)
			}
		},
	}
}

// buildSetting returns one embedded build setting, or "" when absent.
func buildSetting(info *debug.BuildInfo, key string) string {
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}

	return ""
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
