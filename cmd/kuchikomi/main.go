package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AreslotLLC/kuchikomi/internal/ai"
	"github.com/AreslotLLC/kuchikomi/internal/api"
	"github.com/AreslotLLC/kuchikomi/internal/catalog"
	"github.com/AreslotLLC/kuchikomi/internal/config"
	"github.com/AreslotLLC/kuchikomi/internal/middleware"
	"github.com/AreslotLLC/kuchikomi/internal/webhook"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kuchikomi",
		Short: "Per-client review-collection survey service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(clientsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		logrus.Warn("KUCHIKOMI_CLIENTS not set, using the built-in sample catalog")
		return catalog.Sample(), nil
	}
	return catalog.Load(cfg.CatalogPath)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}

			rt := api.NewRouter(cat, webhook.NewDispatcher(), ai.NewOpenAIGenerator(cfg.OpenAIAPIKey))
			rt.Sessions().Threshold = cfg.ReviewThreshold
			rt.Sessions().MinLoading = cfg.MinLoading

			r := mux.NewRouter()
			rt.Register(r)
			handler := middleware.NoStore(middleware.CORS(r))

			logrus.WithFields(logrus.Fields{
				"addr":    cfg.Addr,
				"clients": len(cat.List()),
			}).Info("kuchikomi server listening")
			return http.ListenAndServe(cfg.Addr, handler)
		},
	}
}

func clientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List the configured client catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			for _, cl := range cat.List() {
				fmt.Printf("%s\t%s\t(%d questions)\n", cl.ID, cl.Name, len(cl.Questions))
			}
			return nil
		},
	}
}
