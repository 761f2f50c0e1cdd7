// storeprice CLI - offline catalog tooling
//
// Usage:
//
//	storeprice list --search speed --category speedups --currency EUR
//	storeprice compare --id 5m-speed-up --id 1h-speed-up
//	storeprice --lang ar list --category speedups
//	storeprice convert --amount 12.5 --currency JPY
//	storeprice rows convert --out rows.parquet
//	storeprice rows push --bucket store-rows
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"storeprice/config"
	"storeprice/internal/catalog"
	"storeprice/internal/currency"
	"storeprice/internal/i18n"
	"storeprice/internal/selection"
	"storeprice/internal/session"
	"storeprice/logger"
	"storeprice/models"
	"storeprice/processor"
	"storeprice/reader"
	"storeprice/writer"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "storeprice",
		Usage:   "Inspect, compare and ship store price rows",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),

		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "rows",
				Aliases: []string{"r"},
				Value:   cli.NewStringSlice("data/seed/*.js"),
				Usage:   "Row file globs (.js, .json, .csv, .parquet)",
				EnvVars: []string{"STOREPRICE_ROWS"},
			},
			&cli.StringFlag{
				Name:    "lang",
				Value:   i18n.English,
				Usage:   "Display language for names and notices (en, ar)",
				EnvVars: []string{"STOREPRICE_LANG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"STOREPRICE_LOG_LEVEL"},
			},
		},

		Before: func(c *cli.Context) error {
			return logger.GetLogger().Configure(c.String("log-level"), "text", "stderr", 0)
		},

		Commands: []*cli.Command{
			listCommand(),
			compareCommand(),
			convertCommand(),
			rowsCommand(),
		},
	}
}

// loadCatalog normalizes every row matched by the global --rows globs and
// wires a session manager over the result.
func loadCatalog(c *cli.Context) (*session.Manager, int, error) {
	rows, files, err := reader.LoadGlobs(c.StringSlice("rows"))
	if err != nil {
		return nil, 0, err
	}
	if len(files) == 0 {
		return nil, 0, fmt.Errorf("no row files match %s", strings.Join(c.StringSlice("rows"), ", "))
	}

	store := catalog.NewStore()
	store.Publish(processor.Normalize(rows), true)

	return session.NewManager(store, currency.NewBuiltinTable()), len(rows), nil
}

// =============================================================================
// LIST COMMAND
// =============================================================================

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List catalog items with their cheapest market",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "search",
				Aliases: []string{"s"},
				Usage:   "Case-insensitive name filter",
			},
			&cli.StringFlag{
				Name:    "category",
				Aliases: []string{"c"},
				Value:   string(models.CategoryAll),
				Usage:   "Category tab",
			},
			&cli.StringFlag{
				Name:  "currency",
				Value: "USD",
				Usage: "Display currency code",
			},
		},
		Action: runList,
	}
}

func runList(c *cli.Context) error {
	manager, rowCount, err := loadCatalog(c)
	if err != nil {
		return err
	}

	sess := manager.Create(c.String("currency"))
	defer manager.Close(sess.ID())
	sess.SetLanguage(c.String("lang"))
	sess.SetFilter(c.String("search"), models.ParseCategory(c.String("category")))
	v := sess.View()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tCHEAPEST\tMARKET\tMARKETS")
	for _, it := range v.Items {
		cheapest, market := "-", "-"
		for _, p := range it.Prices {
			if p.Cheapest {
				cheapest, market = p.Display, p.MarketLabel
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", it.ID, it.LocalName, v.CategoryLabels[it.Category], cheapest, market, len(it.Prices))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d of %d items (%d rows, currency %s)\n", len(v.Items), v.Counts[models.CategoryAll], rowCount, v.Currency.Code)
	return nil
}

// =============================================================================
// COMPARE COMMAND
// =============================================================================

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: fmt.Sprintf("Compare up to %d items side by side", selection.Capacity),
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "id",
				Aliases:  []string{"i"},
				Usage:    "Item id (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "currency",
				Value: "USD",
				Usage: "Display currency code",
			},
		},
		Action: runCompare,
	}
}

func runCompare(c *cli.Context) error {
	manager, _, err := loadCatalog(c)
	if err != nil {
		return err
	}

	sess := manager.Create(c.String("currency"))
	defer manager.Close(sess.ID())
	lang := sess.SetLanguage(c.String("lang"))

	for _, id := range c.StringSlice("id") {
		if containsID(sess.Selection(), id) {
			continue
		}
		if _, err := sess.Toggle(id); err != nil {
			if errors.Is(err, selection.ErrLimitReached) {
				fmt.Fprintf(os.Stderr, "%s: %s\n", i18n.Strings(lang).MaxItems, id)
				continue
			}
			return err
		}
	}

	v := sess.View()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, it := range v.Compare {
		fmt.Fprintf(w, "%s\t(%s)\t%s\n", it.LocalName, it.ID, v.CategoryLabels[it.Category])
		for _, p := range it.Prices {
			mark := ""
			if p.Cheapest {
				mark = v.Strings.Cheapest
			}
			fmt.Fprintf(w, "\t%s\t%s\t%s\n", p.MarketLabel, p.Display, mark)
		}
	}
	return w.Flush()
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// =============================================================================
// CONVERT COMMAND
// =============================================================================

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:  "convert",
		Usage: "Convert a base-unit amount into another currency",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Amount in the base unit (USD)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "currency",
				Usage: "Target currency codes (repeatable, default all)",
			},
			&cli.StringFlag{
				Name:  "provider",
				Value: config.ProviderNone,
				Usage: "Refresh rates first (http, binance, none)",
			},
			&cli.StringFlag{
				Name:  "rates-url",
				Usage: "Rate document URL for the http provider",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "Rate refresh timeout",
			},
		},
		Action: runConvert,
	}
}

func runConvert(c *cli.Context) error {
	table := currency.NewBuiltinTable()

	if svc := currency.NewService(config.CurrencyConfig{
		Provider: c.String("provider"),
		URL:      c.String("rates-url"),
		Timeout:  c.Duration("timeout"),
	}, table); svc != nil {
		refresher := currency.NewRefresher(table, svc, time.Hour, c.Duration("timeout"))
		if err := refresher.Refresh(c.Context); err != nil {
			fmt.Fprintf(os.Stderr, "rate refresh failed, using built-in rates: %v\n", err)
		}
	}

	targets := table.All()
	if codes := c.StringSlice("currency"); len(codes) > 0 {
		targets = targets[:0:0]
		for _, code := range codes {
			cur, err := table.Get(code)
			if err != nil {
				return err
			}
			targets = append(targets, cur)
		}
	}

	amount := c.Float64("amount")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tRATE\tVALUE\tDISPLAY")
	for _, cur := range targets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			cur.Code,
			decimal.NewFromFloat(cur.Rate).String(),
			currency.Convert(amount, cur).String(),
			currency.Format(amount, cur))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if table.Live() {
		fmt.Printf("\nrates refreshed at %s\n", table.RefreshedAt().Format(time.RFC3339))
	}
	return nil
}

// =============================================================================
// ROWS COMMAND
// =============================================================================

func rowsCommand() *cli.Command {
	return &cli.Command{
		Name:  "rows",
		Usage: "Convert and ship row files",
		Subcommands: []*cli.Command{
			{
				Name:  "convert",
				Usage: "Encode the matched rows as a parquet file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Output parquet path",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "compression",
						Value: "snappy",
						Usage: "Parquet codec (snappy, gzip, none)",
					},
				},
				Action: runRowsConvert,
			},
			{
				Name:  "push",
				Usage: "Upload the matched rows to S3 or a running dashboard",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "bucket", Usage: "S3 bucket", EnvVars: []string{"STOREPRICE_S3_BUCKET"}},
					&cli.StringFlag{Name: "prefix", Value: "rows", Usage: "S3 key prefix"},
					&cli.StringFlag{Name: "region", Value: "us-east-1", Usage: "AWS region", EnvVars: []string{"AWS_REGION"}},
					&cli.StringFlag{Name: "endpoint", Usage: "S3 compatible endpoint", EnvVars: []string{"STOREPRICE_S3_ENDPOINT"}},
					&cli.BoolFlag{Name: "path-style", Usage: "Use path-style S3 addressing"},
					&cli.StringFlag{Name: "compression", Value: "snappy", Usage: "Parquet codec"},
					&cli.StringFlag{Name: "dashboard", Usage: "Dashboard base URL, e.g. http://localhost:8080"},
					&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "Request timeout"},
				},
				Action: runRowsPush,
			},
		},
	}
}

func runRowsConvert(c *cli.Context) error {
	rows, files, err := reader.LoadGlobs(c.StringSlice("rows"))
	if err != nil {
		return err
	}
	data, written, err := writer.EncodeParquet(rows, c.String("compression"))
	if err != nil {
		return err
	}

	out := c.String("out")
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %d of %d rows from %d files to %s (%d bytes)\n", written, len(rows), len(files), out, len(data))
	return nil
}

func runRowsPush(c *cli.Context) error {
	rows, _, err := reader.LoadGlobs(c.StringSlice("rows"))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	switch {
	case c.String("bucket") != "":
		return pushS3(ctx, c, rows)
	case c.String("dashboard") != "":
		return pushDashboard(ctx, c.String("dashboard"), rows)
	}
	return errors.New("either --bucket or --dashboard is required")
}

func pushS3(ctx context.Context, c *cli.Context, rows []models.RawRow) error {
	data, written, err := writer.EncodeParquet(rows, c.String("compression"))
	if err != nil {
		return err
	}

	client, err := reader.NewS3Client(ctx, config.S3FeedConfig{
		Bucket:          c.String("bucket"),
		Region:          c.String("region"),
		Endpoint:        c.String("endpoint"),
		PathStyle:       c.Bool("path-style"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return err
	}

	uploader := writer.NewS3Uploader(client, c.String("bucket"), c.String("prefix"), version)
	key := uploader.Key(time.Now(), ".parquet")
	if err := uploader.Upload(ctx, key, data); err != nil {
		return err
	}
	fmt.Printf("uploaded %d rows to s3://%s/%s\n", written, c.String("bucket"), key)
	return nil
}

func pushDashboard(ctx context.Context, base string, rows []models.RawRow) error {
	body, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	url := strings.TrimRight(base, "/") + "/api/rows"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var res struct {
		Offered  int    `json:"offered"`
		Admitted int    `json:"admitted"`
		Rows     int    `json:"rows"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dashboard returned %d: %s", resp.StatusCode, res.Error)
	}
	fmt.Printf("pushed %d rows, %d admitted, feed holds %d\n", res.Offered, res.Admitted, res.Rows)
	return nil
}
