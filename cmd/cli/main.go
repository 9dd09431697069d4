package main

import (
	"log"

	"github.com/absmach/fedridge/cli"
	"github.com/absmach/fedridge/pkg/sdk"
	"github.com/spf13/cobra"
)

func main() {
	var (
		aggregatorURL   string
		tlsVerification bool
	)

	rootCmd := &cobra.Command{
		Use:   "fedridge-cli",
		Short: "Fedridge CLI",
		Long:  `Fedridge CLI is a command line interface for running and inspecting federated ridge regressions.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				AggregatorURL:   aggregatorURL,
				TLSVerification: tlsVerification,
			}
			s := sdk.NewSDK(sdkConf)
			cli.SetSDK(s)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&aggregatorURL, "aggregator-url", "a", cli.DefAggregatorURL, "Aggregator URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerification, "tls-verification", cli.DefTLSVerification, "Verify the aggregator TLS certificate")

	rootCmd.AddCommand(
		cli.NewRunsCmd(),
		cli.NewSimulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
