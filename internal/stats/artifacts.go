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

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"decipher/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	configFile     = "config.json"
	resultFile     = "result.json"
	traceCSVFile   = "score_trace.csv"
	traceChartFile = "score_trace.html"
)

type RunConfig struct {
	RunID        string `json:"run_id"`
	CreatedAtUTC string `json:"created_at_utc"`
	Alphabet     string `json:"alphabet"`
	CorpusDigest string `json:"corpus_digest"`
	CorpusPath   string `json:"corpus_path,omitempty"`
	Ciphertext   string `json:"ciphertext"`
	Seed         int64  `json:"seed"`
	Iterations   int    `json:"iterations"`
	StepSize     int    `json:"step_size"`
	PrintEvery   int    `json:"print_every"`
	Chains       int    `json:"chains"`
	Workers      int    `json:"workers"`
}

type RunResult struct {
	BestChain      int      `json:"best_chain"`
	BestKey        []int    `json:"best_key"`
	BestMapping    string   `json:"best_mapping"`
	BestScore      float64  `json:"best_score"`
	InitialScore   float64  `json:"initial_score"`
	Accepted       int      `json:"accepted"`
	Rejected       int      `json:"rejected"`
	Cancelled      bool     `json:"cancelled"`
	BestFixesZero  bool     `json:"best_fixes_zero"`
	KeyAccuracy    *float64 `json:"key_accuracy,omitempty"`
	Plaintext      string   `json:"plaintext"`
	Warnings       []string `json:"warnings,omitempty"`
	DurationMillis int64    `json:"duration_millis"`
}

type RunArtifacts struct {
	Config RunConfig
	Result RunResult
	// Trace is the score history of the winning chain.
	Trace []model.TracePoint
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Alphabet     string  `json:"alphabet"`
	Iterations   int     `json:"iterations"`
	Chains       int     `json:"chains"`
	Seed         int64   `json:"seed"`
	BestScore    float64 `json:"best_score"`
	Cancelled    bool    `json:"cancelled"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

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
	if err := writeJSON(filepath.Join(runDir, resultFile), artifacts.Result); err != nil {
		return "", err
	}
	if err := writeTraceCSV(filepath.Join(runDir, traceCSVFile), artifacts.Trace); err != nil {
		return "", err
	}
	if err := writeTraceChart(filepath.Join(runDir, traceChartFile), artifacts.Config.RunID, artifacts.Trace); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var config RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &config)
	return config, ok, err
}

func ReadRunResult(baseDir, runID string) (RunResult, bool, error) {
	var result RunResult
	ok, err := readJSON(filepath.Join(baseDir, runID, resultFile), &result)
	return result, ok, err
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

// ListRunIndex returns index entries newest first.
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
			// Prefer later appended entries for equal timestamps.
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
		return nil, err
	}
	return entries, nil
}

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

	for _, file := range []string{configFile, resultFile, traceCSVFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	chartPath := filepath.Join(src, traceChartFile)
	if _, err := os.Stat(chartPath); err == nil {
		if err := copyFile(chartPath, filepath.Join(dst, traceChartFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return dst, nil
}

// ReadTrace loads score_trace.csv for a run.
func ReadTrace(baseDir, runID string) ([]model.TracePoint, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, traceCSVFile))
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
			return []model.TracePoint{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 4 {
		return nil, false, fmt.Errorf("score trace header must have 4 columns")
	}

	trace := make([]model.TracePoint, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		point, err := parseTraceRecord(record)
		if err != nil {
			return nil, false, err
		}
		trace = append(trace, point)
	}
	return trace, true, nil
}

func parseTraceRecord(record []string) (model.TracePoint, error) {
	if len(record) < 4 {
		return model.TracePoint{}, fmt.Errorf("score trace row must have 4 columns")
	}
	iteration, err := strconv.Atoi(record[0])
	if err != nil {
		return model.TracePoint{}, err
	}
	current, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return model.TracePoint{}, err
	}
	best, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return model.TracePoint{}, err
	}
	accepted, err := strconv.Atoi(record[3])
	if err != nil {
		return model.TracePoint{}, err
	}
	return model.TracePoint{Iteration: iteration, CurrentScore: current, BestScore: best, Accepted: accepted}, nil
}

func writeTraceCSV(path string, trace []model.TracePoint) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"iteration", "current_score", "best_score", "accepted"}); err != nil {
		return err
	}
	for _, p := range trace {
		if err := writer.Write([]string{
			strconv.Itoa(p.Iteration),
			strconv.FormatFloat(p.CurrentScore, 'f', -1, 64),
			strconv.FormatFloat(p.BestScore, 'f', -1, 64),
			strconv.Itoa(p.Accepted),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeTraceChart(path, runID string, trace []model.TracePoint) error {
	xLabels := make([]string, len(trace))
	current := make([]opts.LineData, len(trace))
	best := make([]opts.LineData, len(trace))
	for i, p := range trace {
		xLabels[i] = strconv.Itoa(p.Iteration)
		current[i] = opts.LineData{Value: p.CurrentScore}
		best[i] = opts.LineData{Value: p.BestScore}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Score trace", Subtitle: runID}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "score trace " + runID, Width: "1200px", Height: "600px"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xLabels).
		AddSeries("current", current).
		AddSeries("best", best)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
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
