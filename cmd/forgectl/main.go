// forgectl administers a Food Forge deployment.
//
// Usage:
//
//	forgectl migrate
//	forgectl create-admin --email warden@example.edu --name "Mess Warden"
//	forgectl token encode <user-id>
//	forgectl token decode '{"uid":"...","t":1760771400000}'
//	forgectl classify 8
//	forgectl watch --table meal_scans
//
// Database and Redis settings come from the same environment variables as the API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "forgectl",
		Short:         "Administer the Food Forge mess attendance service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(watchCmd())
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
