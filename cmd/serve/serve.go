// Package serve implements the HTTP server command.
package serve

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ACMILabs/acmi-api/cmd/common"
	"github.com/ACMILabs/acmi-api/internal/api"
	"github.com/ACMILabs/acmi-api/internal/search"
)

// Command returns the serve command.
func Command(deps func() (*common.Deps, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the public API",
		Long: `Serve the public API from the file cache. Search requests are proxied
to the search engine when one is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := deps()
			if err != nil {
				return err
			}
			defer func() {
				_ = d.Logger.Sync()
			}()

			var query *search.QueryService
			if d.Config.Search.Host != "" || d.Config.Search.CloudID != "" {
				client, clientErr := d.SearchClient()
				if clientErr != nil {
					return clientErr
				}
				query = search.NewQueryService(client, d.Logger)
			} else {
				d.Logger.Warn("No search engine configured, /search/ will be unavailable")
			}

			handler := api.NewHandler(d.Cache, query, d.Config.Service.PublicBase, d.Logger)
			server := api.NewServer(d.Config, handler, d.Logger, d.Registry)

			if err := server.Start(cmd.Context()); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		},
	}
}
