package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/create-to-solve/jtis/internal/store"
	"github.com/create-to-solve/jtis/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve canonical data, rankings and diagnostics as a JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.New(dataDir)
		if err != nil {
			return err
		}
		defer s.Close()

		addr := serveAddr
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		}

		srv := web.NewServer(s, addr, cfg.Server.RateLimit, logger)
		return srv.ListenAndServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
