// Package export implements the TSV snapshot command.
package export

import (
	"github.com/spf13/cobra"

	"github.com/ACMILabs/acmi-api/cmd/common"
	"github.com/ACMILabs/acmi-api/internal/domain"
)

// Command returns the export command.
func Command(deps func() (*common.Deps, error)) *cobra.Command {
	var resource string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Generate TSV snapshots from the file cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := deps()
			if err != nil {
				return err
			}
			defer func() {
				_ = d.Logger.Sync()
			}()

			exporter := d.Exporter()

			resources := []domain.Resource{domain.Works, domain.Creators}
			if resource != "" {
				parsed, parseErr := domain.ParseResource(resource)
				if parseErr != nil {
					return parseErr
				}
				resources = []domain.Resource{parsed}
			}

			for _, res := range resources {
				if _, err := exporter.Generate(res); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "export a single resource (works or creators)")
	return cmd
}
