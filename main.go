package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	coursechat "github.com/putto11262002/coursechat/app"
	"github.com/putto11262002/coursechat/core"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "coursechat",
		Short:        "Course chat backend: rooms, messages and a live insert feed",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a config file (default ./config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the room feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := coursechat.LoadConfig(configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(),
				syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
			defer stop()

			a, err := coursechat.New(ctx, config)
			if err != nil {
				return err
			}
			return a.Start()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := coursechat.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if err := config.Validate(); err != nil {
				return fmt.Errorf("invalid config:\n%s", coursechat.FormatValidationErrors(err))
			}
			if config.SQLite.File == coursechat.MemoryDB {
				return fmt.Errorf("nothing to migrate for an in-memory database")
			}

			db, err := core.NewSQLiteDB(config.SQLite.File, &core.SQLiteDBOption{Mode: "rwc"})
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", config.SQLite.File)
			return nil
		},
	})

	root.AddCommand(chatCmd())

	return root
}
