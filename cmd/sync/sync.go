// Package sync implements the collection update command.
package sync

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/ACMILabs/acmi-api/cmd/common"
	"github.com/ACMILabs/acmi-api/internal/syncer"
)

// Command returns the sync command.
func Command(deps func() (*common.Deps, error)) *cobra.Command {
	var (
		allWorks    bool
		allCreators bool
		schedule    string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Update the cache from the private collection API",
		Long: `Download works, audio, constellations and creators from the private
collection API, migrate their assets to the public bucket, refresh the
file cache and rebuild the search indices. Runs once, or repeatedly on
a cron schedule with --schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := deps()
			if err != nil {
				return err
			}
			defer func() {
				_ = d.Logger.Sync()
			}()

			runner, err := d.Syncer(d.SyncOptions(allWorks, allCreators))
			if err != nil {
				return err
			}

			if schedule == "" {
				return runner.Run(cmd.Context())
			}

			scheduler := cron.New()
			_, err = scheduler.AddFunc(schedule, func() {
				switch runErr := runner.Run(cmd.Context()); {
				case errors.Is(runErr, syncer.ErrRunInProgress):
					d.Logger.Warn("Previous sync still running, skipping this fire", "schedule", schedule)
				case runErr != nil:
					d.Logger.Error("Scheduled sync failed", "error", runErr)
				}
			})
			if err != nil {
				return fmt.Errorf("parse schedule %q: %w", schedule, err)
			}

			d.Logger.Info("Starting sync scheduler", "schedule", schedule)
			scheduler.Start()
			<-cmd.Context().Done()

			stopCtx := scheduler.Stop()
			<-stopCtx.Done()
			d.Logger.Info("Sync scheduler stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&allWorks, "all-works", false, "download every work instead of an incremental update")
	cmd.Flags().BoolVar(&allCreators, "all-creators", false, "download every creator instead of an incremental update")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression to run the sync repeatedly (e.g. \"0 20 * * *\")")
	return cmd
}
