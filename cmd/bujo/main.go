// bujo is the personal productivity backend daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bujo/bujo/internal/analytics"
	"github.com/bujo/bujo/internal/api"
	"github.com/bujo/bujo/internal/config"
	"github.com/bujo/bujo/internal/gcal"
	"github.com/bujo/bujo/internal/logging"
	"github.com/bujo/bujo/internal/storage"
	bujosync "github.com/bujo/bujo/internal/sync"
)

var version = "dev"

var (
	configPath string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "bujo",
		Short:   "Personal productivity backend with Google Calendar sync",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				logging.SetLevel(logging.DEBUG)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			loc := cfg.Location()

			db, err := storage.Open(storage.Config{Path: filepath.Join(cfg.DataDir, "bujo.db")})
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			events := storage.NewEventStore(db)
			ideas := storage.NewIdeaStore(db)
			inbox := storage.NewInboxStore(db)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			provider := gcal.New(ctx, gcal.Config{
				ServiceAccountFile: cfg.Google.ServiceAccountFile,
				CalendarID:         cfg.Google.CalendarID,
				Location:           loc,
			})
			if !provider.Available() {
				logging.Warn("calendar provider disabled, serving cached data only")
			}

			server := api.NewServer(api.Config{
				Host:               cfg.Server.Host,
				Port:               cfg.Server.Port,
				Provider:           provider,
				CalendarID:         provider.CalendarID(),
				ServiceAccountFile: cfg.Google.ServiceAccountFile,
				Timezone:           cfg.Timezone,
				Reconciler:         bujosync.NewReconciler(provider, events, loc),
				Engine:             analytics.NewEngine(events, ideas, inbox, loc),
				Events:             events,
				Ideas:              ideas,
				Inbox:              inbox,
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logging.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.Save(configPath); err != nil {
				return err
			}

			path := configPath
			if path == "" {
				path = filepath.Join(cfg.DataDir, "config.json")
			}
			fmt.Printf("config written to %s\n", path)
			return nil
		},
	}
}
