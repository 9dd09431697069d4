package cli

import (
	"log/slog"

	"github.com/absmach/fedridge"
	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/sdk"
	"github.com/spf13/cobra"
)

func NewSimulateCmd() *cobra.Command {
	var (
		logLevel string
		remote   bool
	)

	cmd := &cobra.Command{
		Use:   "simulate <config>",
		Short: "Simulate a run",
		Long: `Run every site of a config file in this process.

By default the aggregator runs in memory. With --remote the rounds are
submitted to the aggregator the CLI points at.

Examples:
  fedridge-cli simulate fedridge.toml
  fedridge-cli simulate fedridge.toml --remote`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg, err := fedridge.LoadConfig(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			var svc aggregator.Service
			if remote {
				svc = sdk.NewService(fsdk)
			}

			run, res, err := fedridge.Simulate(cmd.Context(), cfg, svc, logger)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Run "+run.ID+" "+string(run.Status))
			logJSONCmd(*cmd, printable(res))
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level")
	cmd.Flags().BoolVar(&remote, "remote", false, "Aggregate on the remote aggregator")

	return cmd
}
