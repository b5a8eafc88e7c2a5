package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"melodyrl/internal/model"

	"github.com/ncruces/go-strftime"
)

const (
	runIndexFile      = "run_index.json"
	configFile        = "config.json"
	rewardsFile       = "rewards.csv"
	rewardSummaryFile = "reward_summary.json"
	melodyFile        = "melody.json"
	MIDIFile          = "melody.mid"

	indexTimeLayout = "%Y-%m-%dT%H:%M:%SZ"
)

type RunConfig struct {
	RunID             string  `json:"run_id"`
	Episodes          int     `json:"episodes"`
	Seed              int64   `json:"seed"`
	LearningRate      float64 `json:"learning_rate"`
	Gamma             float64 `json:"gamma"`
	Epsilon           float64 `json:"epsilon"`
	GenerateEpsilon   float64 `json:"generate_epsilon"`
	EpsilonSchedule   string  `json:"epsilon_schedule"`
	PatternThreshold  float64 `json:"pattern_threshold"`
	Tempo             int     `json:"tempo"`
	BeatsPerMeasure   int     `json:"beats_per_measure"`
	MeasuresPerPhrase int     `json:"measures_per_phrase"`
	Phrases           int     `json:"phrases"`
}

type RunArtifacts struct {
	Config         RunConfig
	EpisodeRewards []float64
	Summary        RewardSummary
	Melody         model.MelodyRecord
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Episodes     int     `json:"episodes"`
	Seed         int64   `json:"seed"`
	FinalReward  float64 `json:"final_reward"`
	BestReward   float64 `json:"best_reward"`
	MelodyReward float64 `json:"melody_reward"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// FormatIndexTime renders t the way run index timestamps are stored.
func FormatIndexTime(t time.Time) string {
	return strftime.Format(indexTimeLayout, t.UTC())
}

// WriteRunArtifacts lays out one run directory under baseDir and returns its
// path. The MIDI file is written separately into the same directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := WriteRewardSeries(runDir, artifacts.EpisodeRewards); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, rewardSummaryFile), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, melodyFile), artifacts.Melody); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first. Entries sharing a
// timestamp keep reverse append order.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode run index: %w", err)
	}
	return entries, nil
}

// ExportRunArtifacts copies a run directory's files to outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, rewardsFile, rewardSummaryFile, melodyFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	midiPath := filepath.Join(src, MIDIFile)
	if _, err := os.Stat(midiPath); err == nil {
		if err := copyFile(midiPath, filepath.Join(dst, MIDIFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadRewardSummary(baseDir, runID string) (RewardSummary, bool, error) {
	var summary RewardSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, rewardSummaryFile), &summary)
	return summary, ok, err
}

func ReadMelody(baseDir, runID string) (model.MelodyRecord, bool, error) {
	var melody model.MelodyRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, melodyFile), &melody)
	return melody, ok, err
}

func WriteRewardSeries(runDir string, rewards []float64) error {
	file, err := os.Create(filepath.Join(runDir, rewardsFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"episode", "total_reward"}); err != nil {
		return err
	}
	for i, reward := range rewards {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(reward, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadRewardSeries(baseDir, runID string) ([]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, rewardsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("reward series header must have at least 2 columns")
	}

	series := make([]float64, 0, 256)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("reward series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, fmt.Errorf("parse reward %q: %w", record[1], err)
		}
		series = append(series, value)
	}
	return series, true, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
