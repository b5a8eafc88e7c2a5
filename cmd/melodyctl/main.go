package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"melodyrl/internal/music"
	"melodyrl/internal/score"
	"melodyrl/internal/stats"
	"melodyrl/internal/storage"
	"melodyrl/pkg/melodyrl"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const (
	defaultDBPath       = "melodyrl.db"
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
)

var stdout io.Writer = os.Stdout

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "rewards":
		return runRewards(ctx, args[1:])
	case "melody":
		return runMelody(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type clientFlags struct {
	storeKind    *string
	dbPath       *string
	artifactsDir *string
	verbose      *bool
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind:    fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", defaultDBPath, "sqlite database path"),
		artifactsDir: fs.String("artifacts-dir", defaultArtifactsDir, "run artifact directory"),
		verbose:      fs.Bool("v", false, "log every episode"),
	}
}

func (f clientFlags) open() (*melodyrl.Client, error) {
	level := slog.LevelWarn
	if *f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return melodyrl.New(melodyrl.Options{
		StoreKind:    *f.storeKind,
		DBPath:       *f.dbPath,
		ArtifactsDir: *f.artifactsDir,
		ExportsDir:   defaultExportsDir,
		Logger:       logger,
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "initialized store=%s\n", *cf.storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Reset(ctx); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "reset store=%s\n", *cf.storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cf := addClientFlags(fs)
	configPath := fs.String("config", "", "optional run config JSON path")
	episodes := fs.Int("episodes", 2000, "training episodes")
	seed := fs.Int64("seed", 1, "rng seed")
	learningRate := fs.Float64("lr", 0.1, "learning rate")
	gamma := fs.Float64("gamma", 0.95, "discount factor")
	epsilon := fs.Float64("epsilon", 1.0, "initial exploration rate")
	generateEpsilon := fs.Float64("generate-epsilon", 0.0, "exploration rate while generating the final melody")
	schedule := fs.String("schedule", "stochastic", "epsilon schedule: stochastic|fixed|constant")
	patternThreshold := fs.Float64("pattern-threshold", 5.0, "minimum measure reward stored as a pattern")
	tempo := fs.Int("tempo", 120, "midi tempo in bpm")
	logEvery := fs.Int("log-every", 100, "episode log cadence")
	noDrums := fs.Bool("no-drums", false, "omit the drum track")
	noChords := fs.Bool("no-chords", false, "play whole notes as single pitches")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	chartWidth := fs.Int("chart-width", stats.DefaultChartWidth, "reward chart width")
	chartHeight := fs.Int("chart-height", stats.DefaultChartHeight, "reward chart height")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = melodyrl.RunRequest{
			Episodes:         *episodes,
			Seed:             *seed,
			LearningRate:     *learningRate,
			Gamma:            *gamma,
			Epsilon:          *epsilon,
			GenerateEpsilon:  *generateEpsilon,
			EpsilonSchedule:  *schedule,
			PatternThreshold: *patternThreshold,
			Tempo:            *tempo,
			LogEvery:         *logEvery,
			NoDrums:          *noDrums,
			NoChords:         *noChords,
		}
	} else {
		err := overrideFromFlags(&req, setFlags, map[string]any{
			"episodes":          *episodes,
			"seed":              *seed,
			"lr":                *learningRate,
			"gamma":             *gamma,
			"epsilon":           *epsilon,
			"generate-epsilon":  *generateEpsilon,
			"schedule":          *schedule,
			"pattern-threshold": *patternThreshold,
			"tempo":             *tempo,
			"log-every":         *logEvery,
			"no-drums":          *noDrums,
			"no-chords":         *noChords,
		})
		if err != nil {
			return err
		}
	}
	if req.Episodes <= 0 {
		return errors.New("episodes must be > 0")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		type runJSON struct {
			RunID        string              `json:"run_id"`
			ArtifactsDir string              `json:"artifacts_dir"`
			MIDIPath     string              `json:"midi_path"`
			Rewards      stats.RewardSummary `json:"rewards"`
			FinalEpsilon float64             `json:"final_epsilon"`
			States       int                 `json:"states"`
			Patterns     int                 `json:"patterns"`
			MelodyReward float64             `json:"melody_reward"`
			InvalidNotes int                 `json:"invalid_notes"`
			Melody       []string            `json:"melody"`
		}
		return writeJSONOut(runJSON{
			RunID:        summary.RunID,
			ArtifactsDir: summary.ArtifactsDir,
			MIDIPath:     summary.MIDIPath,
			Rewards:      summary.Rewards,
			FinalEpsilon: summary.FinalEpsilon,
			States:       summary.States,
			Patterns:     summary.Patterns,
			MelodyReward: summary.MelodyReward,
			InvalidNotes: summary.InvalidNotes,
			Melody:       noteStrings(summary.Melody),
		})
	}

	fmt.Fprintf(stdout, "run_id=%s episodes=%s final_epsilon=%.4f states=%s patterns=%s\n",
		summary.RunID,
		humanize.Comma(int64(summary.Rewards.Episodes)),
		summary.FinalEpsilon,
		humanize.Comma(int64(summary.States)),
		humanize.Comma(int64(summary.Patterns)),
	)
	fmt.Fprintf(stdout, "rewards mean=%s best=%s (episode %s) first_window=%s last_window=%s improvement=%s\n",
		humanize.FtoaWithDigits(summary.Rewards.Mean, 2),
		humanize.FtoaWithDigits(summary.Rewards.Max, 2),
		humanize.Comma(int64(summary.Rewards.BestEpisode)),
		humanize.FtoaWithDigits(summary.Rewards.FirstWindow, 2),
		humanize.FtoaWithDigits(summary.Rewards.LastWindow, 2),
		humanize.FtoaWithDigits(summary.Rewards.Improvement, 2),
	)
	fmt.Fprintf(stdout, "melody notes=%d reward=%s invalid=%d\n",
		len(summary.Melody),
		humanize.FtoaWithDigits(summary.MelodyReward, 2),
		summary.InvalidNotes,
	)
	printMelody(summary.Melody, summary.Layout.BeatsPerMeasure, summary.Layout.BeatsPerMeasure*summary.Layout.MeasuresPerPhrase)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, stats.RenderRewardChart(
		stats.BuildRewardPlot(summary.EpisodeRewards, stats.DefaultRewardWindow, plotStep(len(summary.EpisodeRewards), *chartWidth)),
		*chartWidth,
		*chartHeight,
		chartStyle(),
	))
	fmt.Fprintf(stdout, "artifacts=%s midi=%s\n", summary.ArtifactsDir, summary.MIDIPath)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	cf := addClientFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, melodyrl.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		type runsItem struct {
			RunID        string  `json:"run_id"`
			CreatedAtUTC string  `json:"created_at_utc"`
			Episodes     int     `json:"episodes"`
			Seed         int64   `json:"seed"`
			FinalEpsilon float64 `json:"final_epsilon"`
			BestReward   float64 `json:"best_reward"`
			MelodyReward float64 `json:"melody_reward"`
			MelodyNotes  int     `json:"melody_notes"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem(item))
		}
		return writeJSONOut(out)
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s episodes=%s seed=%d best_reward=%.2f melody_reward=%.2f notes=%d\n",
			item.RunID,
			item.CreatedAtUTC,
			humanize.Comma(int64(item.Episodes)),
			item.Seed,
			item.BestReward,
			item.MelodyReward,
			item.MelodyNotes,
		)
	}
	return nil
}

func runRewards(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rewards", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	limit := fs.Int("limit", 0, "max episodes to show (0 shows all)")
	window := fs.Int("window", stats.DefaultRewardWindow, "moving average window")
	plot := fs.Bool("plot", false, "render the smoothed reward curve")
	jsonOut := fs.Bool("json", false, "emit rewards as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("rewards requires --run-id or --latest")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	rewards, err := client.Rewards(ctx, melodyrl.RewardsRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	summary := stats.SummarizeRewards(rewards, *window)
	if *jsonOut {
		return writeJSONOut(struct {
			Rewards []float64           `json:"rewards"`
			Summary stats.RewardSummary `json:"summary"`
		}{Rewards: rewards, Summary: summary})
	}

	if *plot {
		fmt.Fprintln(stdout, stats.RenderRewardChart(
			stats.BuildRewardPlot(rewards, *window, plotStep(len(rewards), stats.DefaultChartWidth)),
			stats.DefaultChartWidth,
			stats.DefaultChartHeight,
			chartStyle(),
		))
	} else {
		for i, reward := range rewards {
			fmt.Fprintf(stdout, "episode=%d total_reward=%.4f\n", i+1, reward)
		}
	}
	fmt.Fprintf(stdout, "episodes=%s mean=%.4f std=%.4f min=%.4f max=%.4f best_episode=%d improvement=%.4f\n",
		humanize.Comma(int64(summary.Episodes)),
		summary.Mean,
		summary.StdDev,
		summary.Min,
		summary.Max,
		summary.BestEpisode,
		summary.Improvement,
	)
	return nil
}

func runMelody(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("melody", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	beatsPerMeasure := fs.Int("beats-per-measure", 4, "beats per measure used for layout")
	measuresPerPhrase := fs.Int("measures-per-phrase", 4, "measures per phrase used for layout")
	jsonOut := fs.Bool("json", false, "emit melody as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("melody requires --run-id or --latest")
	}
	if *beatsPerMeasure <= 0 || *measuresPerPhrase <= 0 {
		return errors.New("beats-per-measure and measures-per-phrase must be > 0")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	view, err := client.Melody(ctx, melodyrl.MelodyRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSONOut(struct {
			RunID       string   `json:"run_id"`
			Tempo       int      `json:"tempo"`
			TotalReward float64  `json:"total_reward"`
			TotalBeats  float64  `json:"total_beats"`
			Notes       []string `json:"notes"`
		}{
			RunID:       view.RunID,
			Tempo:       view.Tempo,
			TotalReward: view.TotalReward,
			TotalBeats:  view.TotalBeats,
			Notes:       noteStrings(view.Notes),
		})
	}

	fmt.Fprintf(stdout, "run_id=%s tempo=%d notes=%d total_beats=%s reward=%s\n",
		view.RunID,
		view.Tempo,
		len(view.Notes),
		humanize.Ftoa(view.TotalBeats),
		humanize.FtoaWithDigits(view.TotalReward, 2),
	)
	printMelody(view.Notes, *beatsPerMeasure, *beatsPerMeasure**measuresPerPhrase)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cf := addClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", defaultExportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, melodyrl.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func printMelody(notes []music.Note, beatsPerMeasure, beatsPerPhrase int) {
	fmt.Fprintln(stdout, "melody:")
	fmt.Fprintln(stdout, score.FormatMelody(notes, beatsPerMeasure))
	fmt.Fprintln(stdout, "rhythm:")
	for i, phrase := range score.SplitPhrases(notes, beatsPerPhrase) {
		fmt.Fprintf(stdout, "phrase %d: %s\n", i+1, score.VisualizeRhythm(phrase, beatsPerMeasure, score.DefaultMeasuresPerLine))
	}
	fmt.Fprintln(stdout, strings.TrimRight(score.FormatAnalysis(score.Analyze(notes)), "\n"))
}

// plotStep samples roughly one point per chart column.
func plotStep(episodes, width int) int {
	if width <= 0 || episodes <= width {
		return 1
	}
	return episodes / width
}

func chartStyle() stats.ChartStyle {
	if f, ok := stdout.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return stats.UnicodeChartStyle
	}
	return stats.ASCIIChartStyle
}

func noteStrings(notes []music.Note) []string {
	out := make([]string, 0, len(notes))
	for _, note := range notes {
		out = append(out, note.String())
	}
	return out
}

func writeJSONOut(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: melodyctl <init|reset|run|runs|rewards|melody|export> [flags]", msg)
}
