package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"business-forecasting-engine/artifact"
	"business-forecasting-engine/dataset"
	"business-forecasting-engine/forecast"
)

const version = "0.1.0"

type CLIConfig struct {
	Verbose bool
	Logger  *logrus.Logger
}

func main() {
	var (
		command = flag.String("cmd", "", "Command to execute")
		verbose = flag.Bool("v", false, "Verbose output")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || *command == "" {
		showHelp()
		return
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	config := CLIConfig{
		Verbose: *verbose,
		Logger:  logger,
	}

	args := flag.Args()

	var err error
	switch *command {
	case "fit":
		err = handleFit(config, args)
	case "predict":
		err = handlePredict(config, args)
	case "cross-validate":
		err = handleCrossValidate(config, args)
	case "inspect":
		err = handleInspect(config, args)
	case "demo":
		err = handleDemo(config, args)
	default:
		fmt.Printf("Unknown command: %s\n", *command)
		showHelp()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Printf(`Business Forecasting Engine CLI v%s

USAGE:
    forecast-cli --cmd <command> [options] [args]

COMMANDS:
    fit            - Fit a forecasting model from a CSV file
    predict        - Generate a forecast from a saved model
    cross-validate - Evaluate forecast accuracy with rolling cutoffs
    inspect        - Show a saved model's summary and coefficients
    demo           - Generate a synthetic business metric CSV

FITTING:
    forecast-cli --cmd fit --input revenue.csv --target-col revenue --output model.json.gz
    forecast-cli --cmd fit --input revenue.csv --target-col revenue --mode additive --country ""

PREDICTING:
    forecast-cli --cmd predict --model model.json.gz --periods 30
    forecast-cli --cmd predict --model model.json.gz --periods 12 --frequency W --output forecast.csv

EVALUATION:
    forecast-cli --cmd cross-validate --input revenue.csv --target-col revenue --initial 365 --horizon 30
    forecast-cli --cmd inspect --model model.json.gz

DEMO:
    forecast-cli --cmd demo --output demo.csv --days 730

OPTIONS:
    --v        Verbose output
    --help     Show this help message

`, version)
}

// parseModelFlags applies configuration flags shared by fit and
// cross-validate.
func parseModelFlags(args []string) (*forecast.ModelConfiguration, error) {
	cfg := forecast.NewConfiguration()

	if mode := getArg(args, "--mode", ""); mode != "" {
		if err := cfg.SetSeasonalityMode(forecast.SeasonalityMode(mode)); err != nil {
			return nil, err
		}
	}
	if country := getArgWithPresence(args, "--country"); country != nil {
		if err := cfg.SetHolidayCountry(*country); err != nil {
			return nil, err
		}
	}
	if interval := getArg(args, "--interval", ""); interval != "" {
		width, err := strconv.ParseFloat(interval, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --interval %q: %w", interval, err)
		}
		if err := cfg.SetIntervalWidth(width); err != nil {
			return nil, err
		}
	}
	if samples := getArg(args, "--samples", ""); samples != "" {
		n, err := strconv.Atoi(samples)
		if err != nil {
			return nil, fmt.Errorf("invalid --samples %q: %w", samples, err)
		}
		if err := cfg.SetUncertaintySamples(n); err != nil {
			return nil, err
		}
	}
	if prior := getArg(args, "--changepoint-prior", ""); prior != "" {
		scale, err := strconv.ParseFloat(prior, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --changepoint-prior %q: %w", prior, err)
		}
		if err := cfg.SetChangepointPriorScale(scale); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadSeries reads and prepares the training CSV shared by fit and
// cross-validate.
func loadSeries(config CLIConfig, args []string) (*dataset.PreparedSeries, error) {
	input := getArg(args, "--input", "")
	if input == "" {
		return nil, fmt.Errorf("--input is required")
	}
	tsCol := getArg(args, "--timestamp-col", "timestamp")
	targetCol := getArg(args, "--target-col", "")
	if targetCol == "" {
		return nil, fmt.Errorf("--target-col is required")
	}

	frame, err := dataset.LoadCSV(input, nil, config.Logger)
	if err != nil {
		return nil, err
	}
	return dataset.NewPreprocessor(config.Logger).Prepare(frame, tsCol, targetCol)
}

func handleFit(config CLIConfig, args []string) error {
	series, err := loadSeries(config, args)
	if err != nil {
		return err
	}
	cfg, err := parseModelFlags(args)
	if err != nil {
		return err
	}

	name := getArg(args, "--name", "")
	if name == "" {
		input := getArg(args, "--input", "")
		name = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	}
	output := getArg(args, "--output", "model.json.gz")

	model, err := forecast.New(name, cfg, config.Logger).Fit(context.Background(), series)
	if err != nil {
		return err
	}
	if err := artifact.NewStore(config.Logger).Save(output, model); err != nil {
		return err
	}

	start, end := model.TrainingWindow()
	fmt.Printf("✓ Model fitted: %s (id %s)\n", model.Name(), model.ID())
	fmt.Printf("  Training samples: %d (%s → %s)\n",
		model.TrainingSamples(), start.Format("2006-01-02"), end.Format("2006-01-02"))
	printMetrics(model.Metrics())
	if features := model.FeatureColumns(); len(features) > 0 {
		fmt.Printf("  Regressors: %s\n", strings.Join(features, ", "))
	}
	fmt.Printf("  Saved to: %s\n", output)
	return nil
}

func printMetrics(outcome forecast.MetricsOutcome) {
	switch outcome.Status {
	case forecast.MetricsSucceeded, forecast.MetricsPartial:
		m := outcome.Metrics
		fmt.Printf("  MAPE: %.2f%%  RMSE: %.2f  MAE: %.2f  R²: %.3f\n",
			m.MAPE*100, m.RMSE, m.MAE, m.R2)
		if outcome.Status == forecast.MetricsPartial {
			fmt.Printf("  ⚠ Metrics partial: %s\n", outcome.Reason)
		}
	default:
		fmt.Printf("  ⚠ Training metrics unavailable: %s\n", outcome.Reason)
	}
}

func handlePredict(config CLIConfig, args []string) error {
	modelPath := getArg(args, "--model", "")
	if modelPath == "" {
		return fmt.Errorf("--model is required")
	}
	periods, err := strconv.Atoi(getArg(args, "--periods", "30"))
	if err != nil {
		return fmt.Errorf("invalid --periods: %w", err)
	}
	freq, err := forecast.ParseFrequency(getArg(args, "--frequency", "D"))
	if err != nil {
		return err
	}

	model, err := artifact.NewStore(config.Logger).Load(modelPath)
	if err != nil {
		return err
	}

	fc, err := model.Predict(context.Background(), forecast.PredictOptions{
		Periods:        periods,
		Frequency:      freq,
		IncludeHistory: hasFlag(args, "--include-history"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("📈 Forecast for %s: %d periods (%s)\n", fc.ModelName, fc.Periods, fc.Frequency)
	fmt.Printf("  Mean interval width: %.2f\n", fc.ConfidenceWidth)

	if output := getArg(args, "--output", ""); output != "" {
		if err := writeForecastCSV(output, fc.Rows); err != nil {
			return err
		}
		fmt.Printf("  Saved to: %s\n", output)
		return nil
	}

	future := fc.Horizon()
	limit := len(future)
	if limit > 10 && !config.Verbose {
		limit = 10
	}
	fmt.Printf("  %-12s %12s %12s %12s\n", "date", "yhat", "lower", "upper")
	for _, row := range future[:limit] {
		fmt.Printf("  %-12s %12.2f %12.2f %12.2f\n",
			row.Timestamp.Format("2006-01-02"), row.Predicted, row.Lower, row.Upper)
	}
	if limit < len(future) {
		fmt.Printf("  ... %d more rows (use --output or -v for all)\n", len(future)-limit)
	}
	return nil
}

func writeForecastCSV(path string, rows []forecast.ForecastRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"timestamp", "yhat", "yhat_lower", "yhat_upper", "trend", "seasonal", "holidays", "regressors"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Timestamp.Format(time.RFC3339),
			formatFloat(row.Predicted),
			formatFloat(row.Lower),
			formatFloat(row.Upper),
			formatFloat(row.Trend),
			formatFloat(row.Seasonal),
			formatFloat(row.Holidays),
			formatFloat(row.Regressors),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func handleCrossValidate(config CLIConfig, args []string) error {
	series, err := loadSeries(config, args)
	if err != nil {
		return err
	}
	cfg, err := parseModelFlags(args)
	if err != nil {
		return err
	}

	days := func(name string) (time.Duration, error) {
		raw := getArg(args, name, "0")
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	horizon, err := days("--horizon")
	if err != nil {
		return err
	}
	initial, err := days("--initial")
	if err != nil {
		return err
	}
	period, err := days("--period")
	if err != nil {
		return err
	}
	workers, err := strconv.Atoi(getArg(args, "--workers", "0"))
	if err != nil {
		return fmt.Errorf("invalid --workers: %w", err)
	}

	name := getArg(args, "--name", "cv")
	result, err := forecast.New(name, cfg, config.Logger).CrossValidate(context.Background(), series, forecast.CrossValidationOptions{
		Horizon: horizon,
		Initial: initial,
		Period:  period,
		Workers: workers,
	})
	if err != nil {
		return err
	}

	fmt.Printf("📊 Cross-validation: %d folds\n", len(result.Folds))
	for _, fold := range result.Folds {
		fmt.Printf("  cutoff %s: %d training points, %d evaluated\n",
			fold.Cutoff.Format("2006-01-02"), fold.TrainingPoints, len(fold.Points))
	}
	fmt.Printf("\n  %-8s %8s %10s %10s %10s %10s\n", "horizon", "points", "MAPE", "RMSE", "MAE", "coverage")
	for _, perf := range result.Performance {
		fmt.Printf("  %-8s %8d %9.2f%% %10.2f %10.2f %9.1f%%\n",
			fmt.Sprintf("%dd", perf.HorizonDays), perf.Points,
			perf.MAPE*100, perf.RMSE, perf.MAE, perf.Coverage*100)
	}

	if config.Verbose {
		pretty, _ := json.MarshalIndent(result.Performance, "", "  ")
		fmt.Println(string(pretty))
	}
	return nil
}

func handleInspect(config CLIConfig, args []string) error {
	modelPath := getArg(args, "--model", "")
	if modelPath == "" {
		return fmt.Errorf("--model is required")
	}

	payload, err := artifact.NewStore(config.Logger).LoadPayload(modelPath)
	if err != nil {
		return err
	}
	model := payload.Model

	start, end := model.TrainingWindow()
	fmt.Printf("🔍 Model: %s (id %s)\n", model.Name(), model.ID())
	fmt.Printf("  Fitted: %s\n", model.FittedAt().Format(time.RFC3339))
	fmt.Printf("  Seasonality mode: %s\n", model.Mode())
	fmt.Printf("  Target: %s\n", model.TargetColumn())
	fmt.Printf("  Training samples: %d (%s → %s)\n",
		model.TrainingSamples(), start.Format("2006-01-02"), end.Format("2006-01-02"))
	printMetrics(model.Metrics())

	if coefs := model.RegressorCoefficients(); len(coefs) > 0 {
		fmt.Printf("  Regressor coefficients:\n")
		for name, coef := range coefs {
			fmt.Printf("    %-20s %12.4f\n", name, coef)
		}
	}
	if config.Verbose {
		if holidays := model.HolidayCoefficients(); len(holidays) > 0 {
			fmt.Printf("  Holiday effects:\n")
			for name, coef := range holidays {
				fmt.Printf("    %-20s %12.4f\n", name, coef)
			}
		}
	}
	return nil
}

func handleDemo(config CLIConfig, args []string) error {
	output := getArg(args, "--output", "demo.csv")
	days, err := strconv.Atoi(getArg(args, "--days", "730"))
	if err != nil {
		return fmt.Errorf("invalid --days: %w", err)
	}
	if days < 30 {
		return fmt.Errorf("--days must be at least 30, got %d", days)
	}
	seed, err := strconv.ParseInt(getArg(args, "--seed", "42"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid --seed: %w", err)
	}

	fmt.Printf("🚀 Generating %d days of synthetic revenue data\n", days)

	file, err := os.Create(output)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()
	if err := w.Write([]string{"timestamp", "revenue", "spend"}); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	start := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)
	growth := 0.4 + rng.Float64()*0.4

	for i := 0; i < days; i++ {
		ts := start.AddDate(0, 0, i)

		// Trend with one mid-series slope change.
		trend := 500.0 + growth*float64(i)
		if i > days/2 {
			trend += (growth / 2) * float64(i-days/2)
		}

		weekly := 1.0 + 0.18*math.Sin(2*math.Pi*float64(ts.Weekday())/7.0)
		yearly := 1.0 + 0.25*math.Sin(2*math.Pi*float64(ts.YearDay())/365.25)

		spend := 120.0 + 40.0*math.Sin(2*math.Pi*float64(i)/30.0) + rng.NormFloat64()*8.0
		value := trend*weekly*yearly + 0.6*spend + rng.NormFloat64()*15.0

		// Holiday bumps on the big retail days.
		if (ts.Month() == time.November && ts.Day() >= 23 && ts.Day() <= 29 && ts.Weekday() == time.Friday) ||
			(ts.Month() == time.December && ts.Day() == 26) {
			value *= 1.6
		}

		record := []string{
			ts.Format("2006-01-02"),
			formatFloat(value),
			formatFloat(spend),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	fmt.Printf("✅ Wrote %s\n", output)
	fmt.Printf("\nTry these commands:\n")
	fmt.Printf("  forecast-cli --cmd fit --input %s --target-col revenue --output demo-model.json.gz\n", output)
	fmt.Printf("  forecast-cli --cmd predict --model demo-model.json.gz --periods 30\n")
	fmt.Printf("  forecast-cli --cmd cross-validate --input %s --target-col revenue --initial 365\n", output)
	return nil
}

func getArg(args []string, flag, defaultValue string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultValue
}

// getArgWithPresence distinguishes an absent flag from an explicitly empty
// value, so --country "" can disable the holiday calendar.
func getArgWithPresence(args []string, flag string) *string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return &args[i+1]
		}
	}
	return nil
}

func hasFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}
