package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "asyncreqd",
		Short: "asyncreq - Asynchronous HTTP request-execution engine",
		Long:  "A daemon that executes HTTP requests asynchronously and delivers results to a configured callback queue.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, env vars override)")

	rootCmd.AddCommand(
		daemonCmd(),
		drainCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the asyncreqd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("asyncreqd dev")
			return nil
		},
	}
}
