package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"StockPulse/internal/di"
	"StockPulse/internal/service/broker"
	"StockPulse/internal/usecase"
	"StockPulse/pkg/config"
	xhttp "StockPulse/pkg/http"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "stockpulse",
		Short: "Real-time market data collection and scoring",
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "config file path")
	rootCmd.AddCommand(serveCmd(), loginURLCmd(), marketCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, collector and scoring engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			app, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}

func loginURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login-url",
		Short: "Print the broker authorization URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			auth := broker.NewOAuthAuthenticator(broker.AuthConfig{
				Broker:      cfg.Broker.Name,
				ClientID:    cfg.Broker.AppID,
				AuthURL:     cfg.Broker.AuthURL,
				TokenURL:    cfg.Broker.TokenURL,
				RedirectURL: cfg.Broker.RedirectURL,
				Scopes:      cfg.Broker.Scopes,
			})
			fmt.Fprintln(cmd.OutOrStdout(), auth.LoginURL(uuid.NewString()))
			return nil
		},
	}
}

func marketCmd() *cobra.Command {
	var (
		addr  string
		q     string
		sort  string
		order string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Show the market table of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			var res struct {
				Data usecase.MarketResult `json:"data"`
			}
			client := xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
			err := client.Do(ctx, &xhttp.Request{
				URL: addr + "/api/market",
				Query: url.Values{
					"q":     {q},
					"sort":  {sort},
					"order": {order},
					"limit": {strconv.Itoa(limit)},
				},
			}, &res)
			if err != nil {
				return err
			}
			renderMarket(cmd, &res.Data)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVarP(&q, "query", "q", "", "symbol filter")
	cmd.Flags().StringVar(&sort, "sort", "score", "sort field")
	cmd.Flags().StringVar(&order, "order", "desc", "asc or desc")
	cmd.Flags().IntVar(&limit, "limit", 25, "max rows")
	return cmd
}

func renderMarket(cmd *cobra.Command, res *usecase.MarketResult) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Symbol", "LTP", "Chg%", "Volume", "Score", "Conf", "Signal", "RSI"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range res.Rows {
		table.Append([]string{
			r.Symbol,
			strconv.FormatFloat(r.LTP, 'f', 2, 64),
			strconv.FormatFloat(r.ChangePct, 'f', 2, 64),
			strconv.FormatFloat(r.Volume, 'f', 0, 64),
			strconv.FormatFloat(r.Score, 'f', 2, 64),
			strconv.Itoa(r.Confidence),
			string(r.Signal),
			strconv.FormatFloat(r.RSI, 'f', 1, 64),
		})
	}
	table.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d symbols\n", res.Count, res.Total)
}
