// Package reindex implements the search index rebuild command.
package reindex

import (
	"github.com/spf13/cobra"

	"github.com/ACMILabs/acmi-api/cmd/common"
	"github.com/ACMILabs/acmi-api/internal/domain"
)

// Command returns the reindex command.
func Command(deps func() (*common.Deps, error)) *cobra.Command {
	var resource string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search indices from the file cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := deps()
			if err != nil {
				return err
			}
			defer func() {
				_ = d.Logger.Sync()
			}()

			indexer, err := d.Indexer()
			if err != nil {
				return err
			}

			resources := domain.Resources
			if resource != "" {
				parsed, parseErr := domain.ParseResource(resource)
				if parseErr != nil {
					return parseErr
				}
				resources = []domain.Resource{parsed}
			}

			for _, res := range resources {
				if _, _, err := indexer.Reindex(cmd.Context(), res); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "reindex a single resource (works, audio, constellations, creators)")
	return cmd
}
