package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/cohortsim/internal/automation"
	"github.com/san-kum/cohortsim/internal/config"
	"github.com/san-kum/cohortsim/internal/experiment"
	"github.com/san-kum/cohortsim/internal/export"
	"github.com/san-kum/cohortsim/internal/metrics"
	"github.com/san-kum/cohortsim/internal/model"
	"github.com/san-kum/cohortsim/internal/storage"
)

var (
	dataDir    string
	verbose    bool
	configFile string
	preset     string
	startYear  int
	finalYear  int
	jsonOut    bool
	noSave     bool
	category   string
	derivedQ   string
	runs       int
	addr       string
	sweepProc  string
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	svgPath    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cohortsim",
		Short: "age-structured cohort population model",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".cohortsim", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "initialise and run a model",
		Args:  cobra.NoArgs,
		RunE:  runModel,
	}
	addModelFlags(runCmd)
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "write the full result as JSON to stdout")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot abundance and derived quantities of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&category, "category", "", "plot only this category")
	plotCmd.Flags().StringVar(&derivedQ, "derived", "", "plot only this derived quantity")
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "write an svg chart to this path instead of the terminal")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(titleStyle.Render("presets"))
			for _, name := range config.ListPresets() {
				cfg := config.GetPreset(name)
				fmt.Printf("  %s %s\n", valueStyle.Render(fmt.Sprintf("%-14s", name)),
					dimStyle.Render(fmt.Sprintf("%d-%d, %s", cfg.Model.StartYear, cfg.Model.FinalYear, strings.Join(cfg.Model.Categories, ", "))))
			}
			return nil
		},
	}

	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "run a model and expose its metrics",
		Args:  cobra.NoArgs,
		RunE:  runMetrics,
	}
	addModelFlags(metricsCmd)
	metricsCmd.Flags().IntVar(&runs, "runs", 1, "number of model runs")
	metricsCmd.Flags().StringVar(&addr, "addr", "", "serve /metrics on this address instead of printing")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run every step of a scenario file and store each run",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "sweep one process parameter and compare final abundance",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addModelFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepProc, "process", "fishing", "process label")
	sweepCmd.Flags().StringVar(&sweepParam, "param", "u", "process parameter")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.3, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 7, "number of values")
	sweepCmd.Flags().StringVar(&derivedQ, "derived", "", "summarise this derived quantity instead of abundance")

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, presetsCmd, metricsCmd, scenarioCmd, sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset model")
	cmd.Flags().IntVar(&startYear, "start-year", config.DefaultStartYear, "first dated year")
	cmd.Flags().IntVar(&finalYear, "final-year", config.DefaultFinalYear, "last dated year")
}

// loadConfig resolves the model: preset, then config file, then any
// explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg := config.DefaultConfig()
	name := "single_stock"

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, "", fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		name = preset
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	}

	if cmd.Flags().Changed("start-year") {
		cfg.Model.StartYear = startYear
	}
	if cmd.Flags().Changed("final-year") {
		cfg.Model.FinalYear = finalYear
	}
	return cfg, name, cfg.Validate()
}

func runModel(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exp := experiment.New(cfg, slog.Default())
	if err := exp.Setup(nil); err != nil {
		return err
	}

	slog.Debug("running model", slog.String("name", name))
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return storage.ExportJSON(os.Stdout, name, result)
	}

	printSummary(name, cfg, result)

	if noSave {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(name, cfg, result)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s %s\n", labelStyle.Render("run id:"), valueStyle.Render(runID))
	return nil
}

func printSummary(name string, cfg *config.Config, result *model.Result) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s %d-%d", name, cfg.Model.StartYear, cfg.Model.FinalYear)))
	fmt.Printf("%s %v\n\n", labelStyle.Render("completed in"), result.Elapsed.Round(time.Microsecond))

	fmt.Println(labelStyle.Render("initialisation"))
	for _, ph := range result.Phases {
		state := dimStyle.Render("done")
		if ph.Converged {
			state = okStyle.Render("converged")
		}
		fmt.Printf("  %-16s %-10s %5d years  %s\n", ph.Label, ph.Type, ph.YearsRun, state)
	}

	fmt.Println()
	fmt.Println(labelStyle.Render("abundance"))
	for _, c := range result.Categories {
		series := result.Series(c)
		first, last := 0.0, 0.0
		if len(series) > 0 {
			first, last = series[0], series[len(series)-1]
		}
		fmt.Printf("  %-16s %14.2f -> %14.2f\n", c, first, last)
	}

	if len(result.Derived) > 0 {
		fmt.Println()
		fmt.Println(labelStyle.Render("derived quantities"))
		for _, label := range sortedKeys(result.Derived) {
			fmt.Printf("  %-16s %14.2f\n", label, result.Derived[label][cfg.Model.FinalYear])
		}
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tYEARS\tCATEGORIES\tELAPSED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d-%d\t%s\t%s\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.StartYear,
			run.FinalYear,
			strings.Join(run.Categories, ","),
			run.Elapsed,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(meta.Name))
	fmt.Printf("%s %s\n", labelStyle.Render("id:        "), meta.ID)
	fmt.Printf("%s %s\n", labelStyle.Render("created:   "), meta.Timestamp.Format(time.RFC3339))
	fmt.Printf("%s %d-%d\n", labelStyle.Render("years:     "), meta.StartYear, meta.FinalYear)
	fmt.Printf("%s %d-%d\n", labelStyle.Render("ages:      "), meta.MinAge, meta.MaxAge)
	fmt.Printf("%s %s\n\n", labelStyle.Render("categories:"), strings.Join(meta.Categories, ", "))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tTYPE\tYEARS\tCONVERGED\tVARIANCE")
	for _, ph := range meta.Phases {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%g\n", ph.Label, ph.Type, ph.YearsRun, ph.Converged, ph.Variance)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, label := range sortedKeys(meta.Derived) {
		values := meta.Derived[label]
		fmt.Printf("\n%s %s\n", labelStyle.Render("derived:"), label)
		for _, year := range sortedYears(values) {
			fmt.Printf("  %d  %14.4f\n", year, values[year])
		}
	}
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	rows, err := st.LoadAbundance(runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Name)
	fmt.Printf("years: %d-%d\n\n", meta.StartYear, meta.FinalYear)

	var series []export.Series
	if derivedQ == "" {
		for _, c := range meta.Categories {
			if category != "" && c != category {
				continue
			}
			years, totals := storage.Totals(rows, c)
			series = append(series, export.Series{Label: c + " abundance", Years: years, Values: totals})
		}
	}
	if category == "" {
		for _, label := range sortedKeys(meta.Derived) {
			if derivedQ != "" && label != derivedQ {
				continue
			}
			values := meta.Derived[label]
			years := sortedYears(values)
			data := make([]float64, len(years))
			for i, year := range years {
				data[i] = values[year]
			}
			series = append(series, export.Series{Label: label, Years: years, Values: data})
		}
	}

	if len(series) == 0 {
		return fmt.Errorf("nothing matched --category %q --derived %q", category, derivedQ)
	}

	if svgPath != "" {
		svg := export.SeriesToSVG(series, 800, 400)
		if svg == "" {
			return fmt.Errorf("not enough years to draw")
		}
		if err := os.WriteFile(svgPath, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgPath)
		return nil
	}

	for _, s := range series {
		printGraph(s.Values, s.Label)
	}
	return nil
}

func printGraph(data []float64, caption string) {
	if len(data) == 0 {
		return
	}
	graph := asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Println(graph)
	fmt.Println()
}

func runMetrics(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runs < 1 {
		return fmt.Errorf("--runs must be at least 1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	collector := metrics.New()
	exp := experiment.New(cfg, slog.Default())
	if err := exp.Setup(collector); err != nil {
		return err
	}
	for i := 0; i < runs; i++ {
		if _, err := exp.Run(ctx); err != nil {
			return err
		}
	}

	if addr == "" {
		return collector.WriteText(os.Stdout)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunScenario(ctx, scenario, slog.Default())
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(scenario.Name))
	if scenario.Description != "" {
		fmt.Println(dimStyle.Render(scenario.Description))
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tYEARS\tFINAL ABUNDANCE\tRUN ID")
	for _, r := range results {
		runID, err := st.Save(scenario.Name+"/"+r.Name, r.Config, r.Result)
		if err != nil {
			return err
		}
		total := 0.0
		if n := len(r.Result.States); n > 0 {
			for _, c := range r.Result.Categories {
				total += r.Result.States[n-1].Total(c)
			}
		}
		fmt.Fprintf(w, "%s\t%d-%d\t%.2f\t%s\n", r.Name, r.Config.Model.StartYear, r.Config.Model.FinalYear, total, runID)
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:      cfg,
		Process:   sweepProc,
		Parameter: sweepParam,
		Min:       sweepMin,
		Max:       sweepMax,
		NumSteps:  sweepSteps,
		Derived:   derivedQ,
	}, slog.Default())
	if err != nil {
		return err
	}

	what := "abundance"
	if derivedQ != "" {
		what = derivedQ
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s: %s.%s", name, sweepProc, sweepParam)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tFINAL %s\tDEPLETION\n", strings.ToUpper(sweepParam), strings.ToUpper(what))
	finals := make([]float64, len(results))
	for i, r := range results {
		fmt.Fprintf(w, "%.4f\t%.2f\t%.3f\n", r.ParamValue, r.Final, r.Depletion)
		finals[i] = r.Final
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println()
	printGraph(finals, fmt.Sprintf("final %s by %s", what, sweepParam))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedYears(m map[int]float64) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
