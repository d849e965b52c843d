package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/druidgo/druid-boot/internal/server"
)

const banner = `
 ___  ___ _   _ ___ ___
|   \| _ \ | | |_ _|   \
| |) |   / |_| || || |) |
|___/|_|_\___/|___|___/
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the stat view console and web stat filter",
		Long:  "Bind the data source configuration, then serve the stat view console and record web request statistics until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Print(banner)
	fmt.Println()

	logger, err := newLogger(os.Stderr, viper.GetViper(), dev)
	if err != nil {
		return err
	}
	srvCfg, err := serverConfig(viper.GetViper())
	if err != nil {
		return err
	}

	// 1. Bind configuration and build the data source
	res, err := configure(ctx, logger)
	if err != nil {
		return err
	}
	if !res.Active {
		logger.Warn("druid data source not configured", "reason", res.Outcome.Message)
	}

	// 2. Build and start HTTP server
	srv := server.New(srvCfg, res, logger)

	fmt.Printf("→ druid %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	for _, sv := range res.Servlets {
		for _, mapping := range sv.URLMappings {
			fmt.Printf("→ %s: http://%s:%d%s\n", sv.Name, srvCfg.Host, srvCfg.Port, mapping)
		}
	}
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	if res.DataSource != nil {
		fmt.Printf("→ Data source: %s (%s)\n", res.DataSource.Name(), res.DataSource.DBType())
	}
	fmt.Println()

	return srv.ListenAndServe()
}
