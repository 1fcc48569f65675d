package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mouse-blink/subshift/internal/domain"
	m "github.com/mouse-blink/subshift/internal/model"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "View a previously saved decision report",
		Long:  "Render the strategy table from a decision report produced by analyze.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return workflow.View(cmd.Context(), domain.ViewArgs{
				Report: m.Path(viper.GetString(reportFlagName)),
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
