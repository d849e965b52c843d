package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPingCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Build the data source, open its pool and validate a connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")

	return cmd
}

func runPing(timeout time.Duration) error {
	logger, err := newLogger(os.Stderr, viper.GetViper(), dev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := configure(ctx, logger)
	if err != nil {
		return err
	}
	defer res.Close()
	if !res.Active {
		return errors.New("druid data source not configured: " + res.Outcome.Message)
	}

	ds := res.DataSource
	start := time.Now()
	if err := ds.Init(ctx); err != nil {
		return fmt.Errorf("init %s: %w", ds.Name(), err)
	}
	if err := ds.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", ds.Name(), err)
	}

	st := ds.Stats()
	fmt.Printf("%s (%s via %s): ok in %s\n", ds.Name(), ds.DBType(), ds.DriverName(), time.Since(start).Round(time.Millisecond))
	fmt.Printf("  open: %d  idle: %d  max active: %d\n", st.OpenConnections, st.PoolingCount, st.MaxActive)
	return nil
}
