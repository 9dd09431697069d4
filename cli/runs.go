package cli

import (
	"github.com/absmach/fedridge"
	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	DefTLSVerification        = false
	DefAggregatorURL          = "http://localhost:7070"
	defOffset          uint64 = 0
	defLimit           uint64 = 10
)

var fsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	fsdk = s
}

func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [create|view|list|result]",
		Short: "Runs manager",
		Long:  `Create, view, list runs and fetch their results.`,
	}

	var (
		configPath string
		sites      []string
		offset     uint64
		limit      uint64
	)

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create run",
		Long: `Create a run on the aggregator.

Examples:
  # Create a run for two sites with default settings
  fedridge-cli runs create thickness --sites site-a,site-b

  # Take the run settings and site IDs from a config file
  fedridge-cli runs create thickness --config fedridge.toml`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			rc := aggregator.RunConfig{
				Name:  args[0],
				Sites: sites,
			}
			if configPath != "" {
				cfg, err := fedridge.LoadConfig(configPath)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				rc.Config = cfg.Run.Aggregator()
				if len(rc.Sites) == 0 {
					rc.Sites = cfg.SiteIDs()
				}
			}

			r, err := fsdk.CreateRun(rc)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}
	createCmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config holding the run settings and sites")
	createCmd.Flags().StringSliceVar(&sites, "sites", []string{}, "Site IDs taking part in the run (comma-separated)")

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View run",
		Long:  `View run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			r, err := fsdk.GetRun(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Long:  `List runs.`,
		Run: func(cmd *cobra.Command, _ []string) {
			p, err := fsdk.ListRuns(offset, limit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, p)
		},
	}
	listCmd.Flags().Uint64VarP(&offset, "offset", "o", defOffset, "Offset")
	listCmd.Flags().Uint64VarP(&limit, "limit", "l", defLimit, "Limit")

	resultCmd := &cobra.Command{
		Use:   "result <id>",
		Short: "View run result",
		Long:  `View the global and per-site statistics of a completed run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			res, err := fsdk.GetResult(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, printable(res))
		},
	}

	cmd.AddCommand(createCmd, viewCmd, listCmd, resultCmd)

	return cmd
}
