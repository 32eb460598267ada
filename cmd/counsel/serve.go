package main

import (
	"github.com/spf13/cobra"

	"github.com/lexhelper/counsel/config"
	srv "github.com/lexhelper/counsel/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if addr != "" {
				cfg.Server.Address = addr
			}
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
