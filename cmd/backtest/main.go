// Command backtest runs one strategy over historical or synthetic candles
// and prints the performance report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidewave/tidewave/internal/config"
	"github.com/tidewave/tidewave/internal/engine"
	"github.com/tidewave/tidewave/internal/eventbus"
	"github.com/tidewave/tidewave/internal/indicators"
	"github.com/tidewave/tidewave/internal/logger"
	"github.com/tidewave/tidewave/internal/marketdata"
	"github.com/tidewave/tidewave/internal/ohlcv"
	"github.com/tidewave/tidewave/internal/strategy"
	"github.com/tidewave/tidewave/pkg/utils"
)

var (
	strategyFile = flag.String("strategy", "", "Path to strategy schema JSON (required)")
	symbol       = flag.String("symbol", "BTCUSDT", "Trading symbol")
	dataFile     = flag.String("data", "", "Path to CSV file with 1m candles")
	startDate    = flag.String("start", "", "Start date (YYYY-MM-DD), defaults to 30 days ago")
	endDate      = flag.String("end", "", "End date (YYYY-MM-DD), defaults to now")
	useExchange  = flag.Bool("exchange", false, "Fetch candles from the exchange (with cache)")
	useSynthetic = flag.Bool("synthetic", false, "Use seeded synthetic data")
	capital      = flag.Float64("capital", 0, "Initial capital override")
	verbose      = flag.Bool("verbose", false, "Print the full trade log")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.SetDefault(logger.New(logger.ConfigFromEnv()))

	if *strategyFile == "" {
		return fmt.Errorf("-strategy is required")
	}
	schema, err := loadStrategy(*strategyFile)
	if err != nil {
		return err
	}

	from, to, err := parseRange(*startDate, *endDate)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bus *eventbus.Bus
	if cfg.Redis.Enabled {
		bus = eventbus.NewBus(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ChannelPrefix, logger.Default())
		defer bus.Close()
	}

	oneMinute, err := loadCandles(ctx, cfg, bus, from, to)
	if err != nil {
		return err
	}
	if len(oneMinute) == 0 {
		return fmt.Errorf("no candles available for %s", *symbol)
	}

	primary, err := marketdata.Aggregate(oneMinute, schema.Data.PrimaryTimeframe)
	if err != nil {
		return fmt.Errorf("aggregating primary series: %w", err)
	}
	mtf := make(map[ohlcv.Timeframe][]ohlcv.Candle, len(schema.Data.AdditionalTimeframes))
	for _, tf := range schema.Data.AdditionalTimeframes {
		series, err := marketdata.Aggregate(oneMinute, tf)
		if err != nil {
			return fmt.Errorf("aggregating %s series: %w", tf, err)
		}
		mtf[tf] = series
	}

	runConfig := engine.Config{
		StartDate:         from,
		EndDate:           to,
		InitialCapital:    cfg.Backtest.InitialCapital,
		Currency:          cfg.Backtest.Currency,
		CommissionPercent: cfg.Backtest.CommissionPercent,
		SlippagePercent:   cfg.Backtest.SlippagePercent,
		FillModel:         "realistic",
		DataSource:        dataSource(),
		ATRPeriod:         cfg.Backtest.ATRPeriod,
		ProgressInterval:  cfg.Backtest.ProgressInterval,
	}
	if *capital > 0 {
		runConfig.InitialCapital = decimal.NewFromFloat(*capital)
	}

	registry := indicators.NewRegistry()
	if err := strategy.Validate(schema, registry); err != nil {
		return fmt.Errorf("invalid strategy: %w", err)
	}

	eng, err := engine.New(schema, registry, runConfig, logger.Default())
	if err != nil {
		return err
	}

	result := eng.Run(ctx, primary, *symbol, mtf, func(event engine.ProgressEvent) {
		fmt.Printf("\rProgress: %5.1f%% (%d/%d candles)", event.Progress, event.ProcessedCandles, event.TotalCandles)
		if payload, err := eventbus.NewEvent(eventbus.EventBacktestProgress, "backtest", event); err == nil {
			bus.Publish(ctx, payload)
		}
	})
	fmt.Println()

	printResult(result)
	return nil
}

func loadStrategy(path string) (*strategy.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategy file: %w", err)
	}
	var schema strategy.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parsing strategy file: %w", err)
	}
	if schema.Version == "" {
		schema.Version = "1.0.0"
	}
	return &schema, nil
}

func parseRange(start, end string) (ohlcv.TimeMs, ohlcv.TimeMs, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	var err error
	if start != "" {
		if from, err = time.Parse("2006-01-02", start); err != nil {
			return 0, 0, fmt.Errorf("invalid start date: %w", err)
		}
	}
	if end != "" {
		if to, err = time.Parse("2006-01-02", end); err != nil {
			return 0, 0, fmt.Errorf("invalid end date: %w", err)
		}
	}
	if !to.After(from) {
		return 0, 0, fmt.Errorf("end date must be after start date")
	}
	return ohlcv.MsFromTime(from), ohlcv.MsFromTime(to), nil
}

func dataSource() string {
	if *useExchange {
		return engine.DataSourceExchange
	}
	return engine.DataSourceLocal
}

func loadCandles(ctx context.Context, cfg *config.Config, bus *eventbus.Bus, from, to ohlcv.TimeMs) ([]ohlcv.Candle, error) {
	switch {
	case *useSynthetic:
		gen := marketdata.NewSyntheticGenerator(cfg.SyntheticSeed, 50_000)
		return gen.Generate(*symbol, from, to), nil

	case *dataFile != "":
		return marketdata.LoadCSV(*dataFile)

	case *useExchange:
		var store marketdata.Store
		if cfg.Database.Enabled {
			pg, err := marketdata.NewPgStore(ctx, cfg.Database.URL, logger.Default())
			if err != nil {
				return nil, err
			}
			if err := pg.EnsureSchema(ctx); err != nil {
				return nil, err
			}
			defer pg.Close()
			store = pg
		}
		source := marketdata.NewBinanceSource(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet, logger.Default())
		provider := marketdata.NewProvider(store, source, logger.Default())

		candles, stats, err := provider.FetchCandles(ctx, *symbol, from, to, func(message string, loaded, total int) {
			fmt.Printf("\r%s", message)
			percent := 0.0
			if total > 0 {
				percent = float64(loaded) / float64(total) * 100
			}
			if event, err := eventbus.NewEvent(eventbus.EventDownload, "data-provider", eventbus.DownloadEvent{
				Type: eventbus.DownloadProgress, Loaded: loaded, Total: total, Percent: percent, Message: message,
			}); err == nil {
				bus.Publish(ctx, event)
			}
		})
		if err != nil {
			if event, busErr := eventbus.NewEvent(eventbus.EventDownload, "data-provider", eventbus.DownloadEvent{
				Type: eventbus.DownloadError, Message: err.Error(),
			}); busErr == nil {
				bus.Publish(ctx, event)
			}
			return nil, err
		}
		if event, busErr := eventbus.NewEvent(eventbus.EventDownload, "data-provider", eventbus.DownloadEvent{
			Type:         eventbus.DownloadComplete,
			Cached:       stats.FromCache,
			Downloaded:   stats.FromAPI,
			CandlesCount: len(candles),
		}); busErr == nil {
			bus.Publish(ctx, event)
		}
		fmt.Printf("\nFetched %d candles (cache %d, api %d) in %dms\n",
			len(candles), stats.FromCache, stats.FromAPI, stats.TotalTimeMs)
		return candles, nil

	default:
		return nil, fmt.Errorf("provide -data, -exchange or -synthetic")
	}
}

func printResult(result *engine.Result) {
	fmt.Printf("\nBacktest %s: %s\n", result.ID, result.Status)
	if result.Error != "" {
		fmt.Printf("Error: %s\n", result.Error)
	}
	if result.Metrics == nil {
		return
	}

	m := result.Metrics
	fmt.Printf("\n=== Performance ===\n")
	fmt.Printf("Total return:    %8.2f%% (%.2f)\n", m.TotalReturnPercent, m.TotalReturnAbs)
	fmt.Printf("CAGR:            %8.2f%%\n", m.CAGR)
	fmt.Printf("Max drawdown:    %8.2f%% (%.2f)\n", m.MaxDrawdownPercent, m.MaxDrawdownAbs)
	fmt.Printf("Sharpe:          %8.2f   Sortino: %.2f   Calmar: %.2f\n", m.SharpeRatio, m.SortinoRatio, m.CalmarRatio)
	fmt.Printf("Trades:          %8d   win rate %.1f%%   profit factor %v\n", m.TotalTrades, m.WinRate, float64(m.ProfitFactor))
	fmt.Printf("Commission paid: %8.2f\n", m.TotalCommission)
	fmt.Printf("Final capital:   %8.2f (peak %.2f)\n", m.FinalCapital, m.PeakCapital)

	if *verbose {
		fmt.Printf("\n=== Trades ===\n")
		for i, tr := range result.Trades {
			fmt.Printf("%3d %-5s entry %s exit %s net %s (%s)\n",
				i+1, tr.Side,
				utils.RoundDecimal(tr.EntryPrice, 2),
				utils.RoundDecimal(tr.ExitPrice, 2),
				utils.RoundDecimal(tr.NetPnL, 2),
				tr.ExitReason,
			)
		}
	}
}
