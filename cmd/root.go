// Package cmd implements the command-line interface for the public API
// service: serving, syncing, reindexing and exporting.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ACMILabs/acmi-api/cmd/common"
	cmdexport "github.com/ACMILabs/acmi-api/cmd/export"
	cmdreindex "github.com/ACMILabs/acmi-api/cmd/reindex"
	cmdserve "github.com/ACMILabs/acmi-api/cmd/serve"
	cmdsync "github.com/ACMILabs/acmi-api/cmd/sync"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug enables debug mode for all commands.
	debug bool

	rootCmd = &cobra.Command{
		Use:   "acmi-api",
		Short: "The ACMI Public API",
		Long: `The ACMI Public API serves the museum's collection from a file cache,
keeps that cache in sync with the private collection API, migrates media
assets to a public bucket, and maintains the search indices.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available to
	// configuration binding.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func deps() (*common.Deps, error) {
	return common.NewCommandDeps(cfgFile, debug)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, environment variables win)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug mode")

	rootCmd.AddCommand(
		cmdserve.Command(deps),
		cmdsync.Command(deps),
		cmdreindex.Command(deps),
		cmdexport.Command(deps),
	)
}
