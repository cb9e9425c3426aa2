package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/ipvote/internal/aggregate"
	"github.com/dropDatabas3/ipvote/internal/app"
	"github.com/dropDatabas3/ipvote/internal/config"
	httpserver "github.com/dropDatabas3/ipvote/internal/http"
	"github.com/dropDatabas3/ipvote/internal/ledger"
	"github.com/dropDatabas3/ipvote/internal/observability/logger"
)

func main() {
	// .env opcional; las IPVOTE_* pisan el yaml en config.Load.
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:          "ipvote",
		Short:        "Ledger de votos por IP con delegación y agregación",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "ruta a config.yaml (opcional, env IPVOTE_*)")

	setup := func() (*config.Config, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "ipvote"})
		return cfg, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levantar la API pública",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return httpserver.Start(ctx, cfg.Server.Addr, a.Handler)
		},
	}

	var aggRefresh bool
	aggregateCmd := &cobra.Command{
		Use:   "aggregate <poll>",
		Short: "Agregar un poll y volcar el CSV enmascarado a stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			csv, _, err := a.Aggregator.PollResults(ctx, args[0], aggRefresh)
			if err != nil {
				return err
			}
			fmt.Print(csv)
			return nil
		},
	}
	aggregateCmd.Flags().BoolVar(&aggRefresh, "refresh", true, "recomputar ignorando el cache de resultados")

	var popLimit, popSeed int
	var popRefresh bool
	popularCmd := &cobra.Command{
		Use:   "popular",
		Short: "Volcar el ranking de polls populares como JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.Aggregator.PopularPolls(ctx, aggregate.Query{
				Limit:   popLimit,
				Seed:    popSeed,
				Refresh: popRefresh,
			})
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(page, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	popularCmd.Flags().IntVar(&popLimit, "limit", 15, "cantidad de polls a listar")
	popularCmd.Flags().IntVar(&popSeed, "seed", 1, "semilla del shuffle determinístico")
	popularCmd.Flags().BoolVar(&popRefresh, "refresh", false, "recomputar ignorando el cache del ranking")

	var migratePrefix string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Reescribir shards viejos al schema de columnas vigente",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := ledger.MigrateShards(ctx, a.Store, migratePrefix)
			if err != nil {
				return err
			}
			fmt.Printf("migrated %d shards\n", n)
			return nil
		},
	}
	migrateCmd.Flags().StringVar(&migratePrefix, "prefix", "votes/", "prefijo de keys a migrar")

	root.AddCommand(serveCmd, aggregateCmd, popularCmd, migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
