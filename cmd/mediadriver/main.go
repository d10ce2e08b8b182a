package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/mediadriver/internal/adminapi"
	"github.com/yanet-platform/mediadriver/internal/config"
	"github.com/yanet-platform/mediadriver/internal/driver"
	"github.com/yanet-platform/mediadriver/internal/logging"
	"github.com/yanet-platform/mediadriver/internal/xcmd"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:   "mediadriver",
	Short: "Media driver for low-latency UDP publish/subscribe streams",
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			if errors.Is(err, xcmd.Interrupted{}) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := config.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, level, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	drv, err := driver.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize driver: %w", err)
	}
	defer drv.Close()

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return drv.Run(ctx)
	})

	if cfg.AdminAPI.Enabled {
		admin := adminapi.New(drv, level, adminapi.WithLog(log))
		wg.Go(func() error {
			return admin.Serve(ctx, cfg.AdminAPI.Endpoint)
		})
	}

	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	wg.Go(func() error {
		xcmd.WatchReload(ctx, func() {
			reloaded, err := config.LoadConfig(cmd.ConfigPath)
			if err != nil {
				log.Errorf("sighup: failed to reload config: %v", err)
				return
			}
			logging.Reload(level, &reloaded.Logging)
			log.Infof("sighup: reloaded log level to %q", reloaded.Logging.Level)
		})
		return nil
	})

	return wg.Wait()
}
