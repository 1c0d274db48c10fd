package cli

import (
	"github.com/spf13/cobra"

	"github.com/emandor/lemme_search/internal/config"
	"github.com/emandor/lemme_search/internal/telemetry"
)

// NewRootCmd assembles the lemme_search command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "lemme_search",
		Short: "Question answering by fanning out to answer providers",
		Long: `lemme_search answers quiz questions by asking several answer providers
at once, voting on their replies and caching every successful answer.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			telemetry.Init(telemetry.FromEnv(config.GetEnv))
		},
	}

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewMigrateCmd())
	root.AddCommand(NewAskCmd())
	root.AddCommand(NewTokenCmd())
	return root
}
