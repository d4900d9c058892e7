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
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"decipher/internal/mcmc"
	"decipher/internal/storage"
	"decipher/pkg/decipher"
)

const (
	defaultArtifactsDir = "runs"
	exportsDir          = "exports"
	previewWidth        = 72
)

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "encrypt":
		return runEncrypt(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "solve":
		return runSolve(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "trace":
		return runTrace(ctx, args[1:])
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
		storeKind:    fs.String("store", envOr("DECIPHER_STORE", storage.DefaultStoreKind()), "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", envOr("DECIPHER_DB_PATH", "decipher.db"), "sqlite database path"),
		artifactsDir: fs.String("artifacts-dir", envOr("DECIPHER_ARTIFACTS_DIR", defaultArtifactsDir), "run artifacts directory"),
		verbose:      fs.Bool("v", false, "debug logging on stderr"),
	}
}

func (f clientFlags) open() (*decipher.Client, error) {
	level := slog.LevelInfo
	if *f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return decipher.New(decipher.Options{
		StoreKind:    *f.storeKind,
		DBPath:       *f.dbPath,
		ArtifactsDir: *f.artifactsDir,
		ExportsDir:   exportsDir,
		Logger:       logger,
	})
}

func runEncrypt(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	alphabetSymbols := fs.String("alphabet", "", "alphabet symbols (default a-z)")
	key := fs.String("key", "", "encryption mapping, e.g. \"a=q b=w\" (random when empty)")
	seed := fs.Int64("seed", 1, "rng seed for a random key")
	text := fs.String("text", "", "plaintext")
	inPath := fs.String("in", "", "plaintext file (overrides -text)")
	outPath := fs.String("out", "", "write ciphertext to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plaintext, err := readText(*text, *inPath)
	if err != nil {
		return err
	}

	client, err := decipher.New(decipher.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	out, err := client.Encrypt(decipher.EncryptRequest{
		Alphabet:  *alphabetSymbols,
		Plaintext: plaintext,
		Key:       *key,
		Seed:      *seed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("key=%q decrypt_key=%q\n", out.Key, out.DecryptKey)
	if *outPath != "" {
		return os.WriteFile(*outPath, []byte(out.Ciphertext+"\n"), 0o644)
	}
	fmt.Println(out.Ciphertext)
	return nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	corpusPath := fs.String("corpus", os.Getenv("DECIPHER_CORPUS"), "reference corpus path")
	alphabetSymbols := fs.String("alphabet", "", "alphabet symbols (default a-z)")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *corpusPath == "" {
		return errors.New("train requires --corpus")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Train(ctx, decipher.TrainRequest{Alphabet: *alphabetSymbols, CorpusPath: *corpusPath})
	if err != nil {
		return err
	}
	fmt.Printf("digest=%s lines=%s pairs=%s cached=%t\n",
		summary.Digest,
		humanize.Comma(int64(summary.Lines)),
		humanize.Comma(int64(summary.Pairs)),
		summary.Cached,
	)
	return nil
}

func runSolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional solve config JSON path")
	corpusPath := fs.String("corpus", os.Getenv("DECIPHER_CORPUS"), "reference corpus path")
	alphabetSymbols := fs.String("alphabet", "", "alphabet symbols (default a-z)")
	text := fs.String("text", "", "ciphertext")
	inPath := fs.String("in", "", "ciphertext file (overrides -text)")
	iterations := fs.Int("iters", 10000, "iterations per chain")
	stepSize := fs.Int("step", 1, "transpositions per proposal")
	seed := fs.Int64("seed", 1, "rng seed")
	printEvery := fs.Int("print-every", 0, "progress and trace cadence (0 uses iters/100)")
	chains := fs.Int("chains", 1, "independent chains")
	workers := fs.Int("workers", 0, "worker goroutines (0 uses one per chain)")
	trueKey := fs.String("true-key", "", "encryption mapping used to score key accuracy")
	progress := fs.Bool("progress", false, "print progress even when stderr is not a terminal")
	jsonOut := fs.Bool("json", false, "emit the result as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req := decipher.SolveRequest{
		Alphabet:   *alphabetSymbols,
		CorpusPath: *corpusPath,
		Iterations: *iterations,
		StepSize:   *stepSize,
		Seed:       *seed,
		PrintEvery: *printEvery,
		Chains:     *chains,
		Workers:    *workers,
		TrueKey:    *trueKey,
	}
	if *configPath != "" {
		loaded, err := loadSolveRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		if err := overrideFromFlags(&loaded, setFlags, map[string]any{
			"alphabet":    *alphabetSymbols,
			"corpus":      *corpusPath,
			"iters":       *iterations,
			"step":        *stepSize,
			"seed":        *seed,
			"print-every": *printEvery,
			"chains":      *chains,
			"workers":     *workers,
			"true-key":    *trueKey,
		}); err != nil {
			return err
		}
		if loaded.CorpusPath == "" {
			loaded.CorpusPath = *corpusPath
		}
		req = loaded
	}
	if setFlags["text"] || setFlags["in"] || req.Ciphertext == "" {
		ciphertext, err := readText(*text, *inPath)
		if err != nil {
			return err
		}
		req.Ciphertext = ciphertext
	}
	if req.CorpusPath == "" {
		return errors.New("solve requires --corpus")
	}

	var async *mcmc.AsyncObserver
	if *progress || isTerminal(os.Stderr) {
		async = mcmc.NewAsyncObserver(progressPrinter(os.Stderr), 64)
		req.Observer = async
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Solve(ctx, req)
	if async != nil {
		async.Close()
	}
	if err != nil {
		return err
	}

	if *jsonOut {
		type solveOutput struct {
			RunID         string   `json:"run_id"`
			ArtifactsDir  string   `json:"artifacts_dir"`
			Plaintext     string   `json:"plaintext"`
			BestKey       []int    `json:"best_key"`
			BestMapping   string   `json:"best_mapping"`
			BestScore     float64  `json:"best_score"`
			InitialScore  float64  `json:"initial_score"`
			BestChain     int      `json:"best_chain"`
			Accepted      int      `json:"accepted"`
			Rejected      int      `json:"rejected"`
			Cancelled     bool     `json:"cancelled"`
			BestFixesZero bool     `json:"best_fixes_zero"`
			KeyAccuracy   *float64 `json:"key_accuracy,omitempty"`
			Warnings      []string `json:"warnings,omitempty"`
			DurationMS    int64    `json:"duration_ms"`
		}
		warnings := make([]string, 0, len(summary.Warnings))
		for _, w := range summary.Warnings {
			warnings = append(warnings, w.String())
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(solveOutput{
			RunID:         summary.RunID,
			ArtifactsDir:  summary.ArtifactsDir,
			Plaintext:     summary.Plaintext,
			BestKey:       summary.BestKey,
			BestMapping:   summary.BestMapping,
			BestScore:     summary.BestScore,
			InitialScore:  summary.InitialScore,
			BestChain:     summary.BestChain,
			Accepted:      summary.Accepted,
			Rejected:      summary.Rejected,
			Cancelled:     summary.Cancelled,
			BestFixesZero: summary.BestFixesZero,
			KeyAccuracy:   summary.KeyAccuracy,
			Warnings:      warnings,
			DurationMS:    summary.Duration.Milliseconds(),
		})
	}

	fmt.Printf("run_id=%s best_score=%.6f initial_score=%.6f chain=%d accepted=%s rejected=%s cancelled=%t duration=%s\n",
		summary.RunID,
		summary.BestScore,
		summary.InitialScore,
		summary.BestChain,
		humanize.Comma(int64(summary.Accepted)),
		humanize.Comma(int64(summary.Rejected)),
		summary.Cancelled,
		summary.Duration.Round(time.Millisecond),
	)
	fmt.Printf("key=%q fixes_space=%t\n", summary.BestMapping, summary.BestFixesZero)
	if summary.KeyAccuracy != nil {
		fmt.Printf("key_accuracy=%.4f\n", *summary.KeyAccuracy)
	}
	for _, w := range summary.Warnings {
		fmt.Printf("warning=%q\n", w.String())
	}
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	fmt.Println(summary.Plaintext)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	cf := addClientFlags(fs)
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

	runs, err := client.Runs(ctx, decipher.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		type runsItem struct {
			RunID        string  `json:"run_id"`
			CreatedAtUTC string  `json:"created_at_utc"`
			Alphabet     string  `json:"alphabet"`
			Iterations   int     `json:"iterations"`
			Chains       int     `json:"chains"`
			Seed         int64   `json:"seed"`
			BestScore    float64 `json:"best_score"`
			Cancelled    bool    `json:"cancelled"`
		}
		items := make([]runsItem, 0, len(runs))
		for _, r := range runs {
			items = append(items, runsItem(r))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for _, r := range runs {
		fmt.Printf("run_id=%s created_at=%s iters=%s chains=%d seed=%d best_score=%.6f cancelled=%t\n",
			r.RunID,
			r.CreatedAtUTC,
			humanize.Comma(int64(r.Iterations)),
			r.Chains,
			r.Seed,
			r.BestScore,
			r.Cancelled,
		)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	jsonOut := fs.Bool("json", false, "emit the run record as JSON")
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

	record, err := client.Run(ctx, decipher.RunRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	fmt.Printf("run_id=%s created_at=%s alphabet=%q seed=%d iters=%s step=%d chains=%d best_chain=%d\n",
		record.ID,
		record.CreatedAtUTC,
		record.Alphabet,
		record.Seed,
		humanize.Comma(int64(record.Iterations)),
		record.StepSize,
		record.Chains,
		record.BestChain,
	)
	fmt.Printf("best_score=%.6f initial_score=%.6f accepted=%s rejected=%s cancelled=%t duration=%s\n",
		record.BestScore,
		record.InitialScore,
		humanize.Comma(int64(record.Accepted)),
		humanize.Comma(int64(record.Rejected)),
		record.Cancelled,
		(time.Duration(record.DurationMillis) * time.Millisecond).String(),
	)
	fmt.Printf("key=%q fixes_space=%t\n", record.BestMapping, record.BestFixesZero)
	if record.KeyAccuracy != nil {
		fmt.Printf("key_accuracy=%.4f\n", *record.KeyAccuracy)
	}
	for _, w := range record.Warnings {
		fmt.Printf("warning=%q\n", w)
	}
	if record.Ciphertext != "" {
		fmt.Printf("ciphertext=%s\n", runewidth.Truncate(record.Ciphertext, previewWidth, "..."))
	}
	fmt.Println(record.Plaintext)
	return nil
}

func runTrace(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "show only the last N points (0 shows all)")
	jsonOut := fs.Bool("json", false, "emit trace as JSON")
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

	trace, err := client.Trace(ctx, decipher.TraceRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trace)
	}
	for _, p := range trace {
		fmt.Printf("iter=%d current=%.6f best=%.6f accepted=%d\n", p.Iteration, p.CurrentScore, p.BestScore, p.Accepted)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
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

	exported, err := client.Export(ctx, decipher.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	size, err := dirSize(exported.Directory)
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s size=%s\n", exported.RunID, exported.Directory, humanize.Bytes(size))
	return nil
}

func progressPrinter(w io.Writer) mcmc.Observer {
	return mcmc.ObserverFunc(func(p mcmc.Progress) {
		fmt.Fprintf(w, "chain=%d iter=%s current=%.4f best=%.4f accepted=%s | %s\n",
			p.Chain,
			humanize.Comma(int64(p.Iteration)),
			p.CurrentScore,
			p.BestScore,
			humanize.Comma(int64(p.Accepted)),
			runewidth.Truncate(p.Preview, previewWidth, "..."),
		)
	})
}

func readText(text, path string) (string, error) {
	if path == "" {
		if text == "" {
			return "", errors.New("input requires --text or --in")
		}
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func dirSize(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total += uint64(info.Size())
		}
	}
	return total, nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: decipherctl <encrypt|train|solve|runs|show|trace|export> [flags]", msg)
}
