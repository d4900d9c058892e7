package decipher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"decipher/internal/alphabet"
	"decipher/internal/bigram"
	"decipher/internal/cipher"
	"decipher/internal/corpus"
	"decipher/internal/mcmc"
	"decipher/internal/model"
	"decipher/internal/stats"
	"decipher/internal/storage"
)

const (
	defaultArtifactsDir  = "runs"
	defaultExportsDir    = "exports"
	defaultDBPath        = "decipher.db"
	defaultIterations    = 10000
	defaultStepSize      = 1
	defaultPreviewLength = 60
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	artifactsDir string
	exportsDir   string

	initMu      sync.Mutex
	initialized bool
}

type TrainRequest struct {
	Alphabet   string
	CorpusPath string
	// Lines takes precedence over CorpusPath when set.
	Lines []string
}

type TrainSummary struct {
	Digest   string
	Alphabet string
	Source   string
	Lines    int
	Pairs    float64
	Cached   bool
}

type EncryptRequest struct {
	Alphabet  string
	Plaintext string
	// Key is an encryption mapping such as "a=q b=w". A random key drawn
	// from Seed is used when it is empty.
	Key  string
	Seed int64
}

type EncryptSummary struct {
	Ciphertext string
	Key        string
	DecryptKey string
}

type SolveRequest struct {
	Alphabet    string
	CorpusPath  string
	CorpusLines []string
	Ciphertext  string
	// Iterations and StepSize fall back to defaults when zero. Use the
	// mcmc package directly to run degenerate configurations.
	Iterations int
	StepSize   int
	Seed       int64
	// PrintEvery defaults to one hundredth of the iterations.
	PrintEvery    int
	Chains        int
	Workers       int
	TrueKey       string
	Observer      mcmc.Observer
	PreviewLength int
}

type SolveSummary struct {
	RunID         string
	ArtifactsDir  string
	Plaintext     string
	BestKey       cipher.Key
	BestMapping   string
	BestScore     float64
	InitialScore  float64
	BestChain     int
	Accepted      int
	Rejected      int
	Cancelled     bool
	BestFixesZero bool
	KeyAccuracy   *float64
	Warnings      []mcmc.Warning
	Duration      time.Duration
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Alphabet     string
	Iterations   int
	Chains       int
	Seed         int64
	BestScore    float64
	Cancelled    bool
}

type RunRequest struct {
	RunID  string
	Latest bool
}

type TraceRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Train builds the reference bigram matrix for a corpus, reusing a stored
// model with the same digest when one exists.
func (c *Client) Train(ctx context.Context, req TrainRequest) (TrainSummary, error) {
	alpha, err := alphabetFromName(req.Alphabet)
	if err != nil {
		return TrainSummary{}, err
	}
	_, summary, err := c.reference(ctx, alpha, req.CorpusPath, req.Lines)
	return summary, err
}

func (c *Client) reference(ctx context.Context, alpha *alphabet.Alphabet, path string, lines []string) (*bigram.Matrix, TrainSummary, error) {
	source := "inline"
	if lines == nil {
		if path == "" {
			return nil, TrainSummary{}, errors.New("corpus path or lines are required")
		}
		loaded, err := corpus.LoadFile(path)
		if err != nil {
			return nil, TrainSummary{}, err
		}
		lines = loaded
		source = path
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, TrainSummary{}, err
	}

	digest := corpus.Digest(alpha, lines)
	summary := TrainSummary{Digest: digest, Alphabet: alpha.Symbols(), Source: source, Lines: len(lines)}

	stored, ok, err := c.store.GetReferenceModel(ctx, digest)
	if err != nil {
		return nil, TrainSummary{}, err
	}
	if ok && stored.Alphabet == alpha.Symbols() {
		ref, err := bigram.FromCounts(stored.Counts)
		if err == nil && ref.Size() == alpha.M() {
			summary.Pairs = ref.Total()
			summary.Cached = true
			c.logger.Debug("[TRAIN] reference model cache hit", "digest", digest)
			return ref, summary, nil
		}
		c.logger.Warn("[TRAIN] discarding unusable cached model", "digest", digest, "error", err)
	}

	ref := bigram.BuildReference(alpha, lines)
	if err := c.store.SaveReferenceModel(ctx, model.ReferenceModel{
		VersionedRecord: storage.Versioned(),
		Digest:          digest,
		Alphabet:        alpha.Symbols(),
		Source:          source,
		Lines:           len(lines),
		Counts:          ref.Counts(),
	}); err != nil {
		return nil, TrainSummary{}, err
	}
	summary.Pairs = ref.Total()
	c.logger.Info("[TRAIN] reference model built", "digest", digest, "lines", len(lines), "pairs", summary.Pairs)
	return ref, summary, nil
}

func (c *Client) Encrypt(req EncryptRequest) (EncryptSummary, error) {
	alpha, err := alphabetFromName(req.Alphabet)
	if err != nil {
		return EncryptSummary{}, err
	}

	var enc cipher.Key
	if req.Key == "" {
		enc = cipher.RandomKey(alpha.M(), rand.New(rand.NewSource(req.Seed)))
	} else {
		enc, err = cipher.ParseMapping(alpha, req.Key)
		if err != nil {
			return EncryptSummary{}, err
		}
	}

	ciphertext, err := cipher.Encrypt(alpha, enc, req.Plaintext)
	if err != nil {
		return EncryptSummary{}, err
	}
	return EncryptSummary{
		Ciphertext: ciphertext,
		Key:        enc.Mapping(alpha),
		DecryptKey: enc.Inverse().Mapping(alpha),
	}, nil
}

// Solve recovers the decryption key for req.Ciphertext, persists the run and
// writes its artifacts. A cancelled context still yields the best key found.
func (c *Client) Solve(ctx context.Context, req SolveRequest) (SolveSummary, error) {
	if req.Iterations == 0 {
		req.Iterations = defaultIterations
		c.logger.Debug("[SOLVE] zero value replaced by default", "field", "iterations", "value", defaultIterations)
	}
	if req.StepSize == 0 {
		req.StepSize = defaultStepSize
		c.logger.Debug("[SOLVE] zero value replaced by default", "field", "step_size", "value", defaultStepSize)
	}
	if req.PrintEvery == 0 {
		req.PrintEvery = max(1, req.Iterations/100)
	}
	if req.Chains <= 0 {
		req.Chains = 1
	}
	if req.Workers <= 0 {
		req.Workers = req.Chains
	}
	if req.PreviewLength <= 0 {
		req.PreviewLength = defaultPreviewLength
	}

	alpha, err := alphabetFromName(req.Alphabet)
	if err != nil {
		return SolveSummary{}, err
	}
	var trueKey cipher.Key
	if req.TrueKey != "" {
		enc, err := cipher.ParseMapping(alpha, req.TrueKey)
		if err != nil {
			return SolveSummary{}, fmt.Errorf("true key: %w", err)
		}
		trueKey = enc.Inverse()
	}

	reference, trained, err := c.reference(ctx, alpha, req.CorpusPath, req.CorpusLines)
	if err != nil {
		return SolveSummary{}, err
	}

	cipherIndices := alpha.Encode(req.Ciphertext)
	observed, err := bigram.BuildObserved(alpha.M(), cipherIndices)
	if err != nil {
		return SolveSummary{}, err
	}
	sampler, err := mcmc.NewSampler(observed, reference)
	if err != nil {
		return SolveSummary{}, err
	}

	cfg := mcmc.Config{
		Iterations: req.Iterations,
		StepSize:   req.StepSize,
		Seed:       req.Seed,
		PrintEvery: req.PrintEvery,
		Observer:   req.Observer,
	}
	if req.Observer != nil {
		cfg.Preview = mcmc.DecodePreview(alpha, cipherIndices, req.PreviewLength)
	}

	c.logger.Info("[SOLVE] starting",
		"symbols", len(cipherIndices),
		"iterations", req.Iterations,
		"step_size", req.StepSize,
		"chains", req.Chains,
		"seed", req.Seed,
	)
	started := time.Now()
	multi, err := sampler.RunChains(ctx, cfg, req.Chains, req.Workers)
	if err != nil {
		return SolveSummary{}, err
	}
	elapsed := time.Since(started)
	for _, w := range multi.Warnings {
		c.logger.Warn("[SOLVE] "+w.Message, "kind", string(w.Kind))
	}

	best := multi.Best
	plaintext, err := mcmc.Decrypt(alpha, best.Best, cipherIndices)
	if err != nil {
		return SolveSummary{}, err
	}

	summary := SolveSummary{
		Plaintext:     plaintext,
		BestKey:       best.Best.Clone(),
		BestMapping:   best.Best.Mapping(alpha),
		BestScore:     best.BestScore,
		InitialScore:  best.InitialScore,
		BestChain:     best.Chain,
		Accepted:      best.Accepted,
		Rejected:      best.Rejected,
		Cancelled:     multi.Cancelled(),
		BestFixesZero: best.Best.FixesZero(),
		Warnings:      append([]mcmc.Warning(nil), multi.Warnings...),
		Duration:      elapsed,
	}
	if trueKey != nil {
		accuracy := KeyAccuracy(best.Best, trueKey, cipherIndices)
		summary.KeyAccuracy = &accuracy
	}

	// Persist even when the caller has cancelled.
	persistCtx := context.WithoutCancel(ctx)
	now := time.Now().UTC()
	runID := newRunID(now)
	summary.RunID = runID

	warnings := make([]string, 0, len(multi.Warnings))
	for _, w := range multi.Warnings {
		warnings = append(warnings, w.String())
	}
	trace := toModelTrace(best.Trace)

	record := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		CreatedAtUTC:    now.Format(time.RFC3339Nano),
		Alphabet:        alpha.Symbols(),
		CorpusDigest:    trained.Digest,
		Seed:            req.Seed,
		Iterations:      req.Iterations,
		StepSize:        req.StepSize,
		PrintEvery:      req.PrintEvery,
		Chains:          req.Chains,
		BestChain:       best.Chain,
		Ciphertext:      req.Ciphertext,
		Plaintext:       plaintext,
		BestKey:         []int(best.Best.Clone()),
		BestMapping:     summary.BestMapping,
		BestScore:       best.BestScore,
		InitialScore:    best.InitialScore,
		Accepted:        best.Accepted,
		Rejected:        best.Rejected,
		Cancelled:       summary.Cancelled,
		BestFixesZero:   summary.BestFixesZero,
		KeyAccuracy:     summary.KeyAccuracy,
		Warnings:        warnings,
		DurationMillis:  elapsed.Milliseconds(),
	}
	if err := c.store.SaveRun(persistCtx, record); err != nil {
		return SolveSummary{}, err
	}
	if err := c.store.SaveTrace(persistCtx, runID, trace); err != nil {
		return SolveSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:        runID,
			CreatedAtUTC: record.CreatedAtUTC,
			Alphabet:     alpha.Symbols(),
			CorpusDigest: trained.Digest,
			CorpusPath:   req.CorpusPath,
			Ciphertext:   req.Ciphertext,
			Seed:         req.Seed,
			Iterations:   req.Iterations,
			StepSize:     req.StepSize,
			PrintEvery:   req.PrintEvery,
			Chains:       req.Chains,
			Workers:      req.Workers,
		},
		Result: stats.RunResult{
			BestChain:      best.Chain,
			BestKey:        record.BestKey,
			BestMapping:    summary.BestMapping,
			BestScore:      best.BestScore,
			InitialScore:   best.InitialScore,
			Accepted:       best.Accepted,
			Rejected:       best.Rejected,
			Cancelled:      summary.Cancelled,
			BestFixesZero:  summary.BestFixesZero,
			KeyAccuracy:    summary.KeyAccuracy,
			Plaintext:      plaintext,
			Warnings:       warnings,
			DurationMillis: record.DurationMillis,
		},
		Trace: trace,
	})
	if err != nil {
		return SolveSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		Alphabet:     alpha.Symbols(),
		Iterations:   req.Iterations,
		Chains:       req.Chains,
		Seed:         req.Seed,
		BestScore:    best.BestScore,
		Cancelled:    summary.Cancelled,
		CreatedAtUTC: record.CreatedAtUTC,
	}); err != nil {
		return SolveSummary{}, err
	}
	summary.ArtifactsDir = filepath.Clean(runDir)

	c.logger.Info("[SOLVE] finished",
		"run_id", runID,
		"best_score", best.BestScore,
		"best_chain", best.Chain,
		"cancelled", summary.Cancelled,
		"duration", elapsed,
	)
	return summary, nil
}

// Runs lists runs newest first from the artifact index. When the index is
// missing or empty the store's run records are listed instead.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	return c.listRuns(ctx, req.Limit)
}

func (c *Client) listRuns(ctx context.Context, limit int) ([]RunItem, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		out := make([]RunItem, 0, len(entries))
		for _, e := range entries {
			out = append(out, RunItem{
				RunID:        e.RunID,
				CreatedAtUTC: e.CreatedAtUTC,
				Alphabet:     e.Alphabet,
				Iterations:   e.Iterations,
				Chains:       e.Chains,
				Seed:         e.Seed,
				BestScore:    e.BestScore,
				Cancelled:    e.Cancelled,
			})
		}
		return out, nil
	}

	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	records, err := c.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(records))
	for _, r := range records {
		out = append(out, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAtUTC,
			Alphabet:     r.Alphabet,
			Iterations:   r.Iterations,
			Chains:       r.Chains,
			Seed:         r.Seed,
			BestScore:    r.BestScore,
			Cancelled:    r.Cancelled,
		})
	}
	return out, nil
}

// Run returns the persisted record of one solve. The store is consulted
// first and the run's config.json and result.json second; records rebuilt
// from artifacts carry no schema version.
func (c *Client) Run(ctx context.Context, req RunRequest) (model.RunRecord, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return model.RunRecord{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.RunRecord{}, err
	}

	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		return record, nil
	}

	config, ok, err := stats.ReadRunConfig(c.artifactsDir, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run %s not found", runID)
	}
	result, ok, err := stats.ReadRunResult(c.artifactsDir, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("result not found for run %s", runID)
	}
	return model.RunRecord{
		ID:             runID,
		CreatedAtUTC:   config.CreatedAtUTC,
		Alphabet:       config.Alphabet,
		CorpusDigest:   config.CorpusDigest,
		Seed:           config.Seed,
		Iterations:     config.Iterations,
		StepSize:       config.StepSize,
		PrintEvery:     config.PrintEvery,
		Chains:         config.Chains,
		BestChain:      result.BestChain,
		Ciphertext:     config.Ciphertext,
		Plaintext:      result.Plaintext,
		BestKey:        result.BestKey,
		BestMapping:    result.BestMapping,
		BestScore:      result.BestScore,
		InitialScore:   result.InitialScore,
		Accepted:       result.Accepted,
		Rejected:       result.Rejected,
		Cancelled:      result.Cancelled,
		BestFixesZero:  result.BestFixesZero,
		KeyAccuracy:    result.KeyAccuracy,
		Warnings:       result.Warnings,
		DurationMillis: result.DurationMillis,
	}, nil
}

// Trace returns the score history of a run's winning chain. The store is
// consulted first and the artifact directory second.
func (c *Client) Trace(ctx context.Context, req TraceRequest) ([]model.TracePoint, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	trace, ok, err := c.store.GetTrace(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		trace, ok, err = stats.ReadTrace(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("trace not found for run %s", runID)
		}
	}
	if req.Limit > 0 && len(trace) > req.Limit {
		trace = trace[len(trace)-req.Limit:]
	}
	return trace, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if runID != "" {
		return runID, nil
	}

	items, err := c.listRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", errors.New("no runs available")
	}
	return items[0].RunID, nil
}

// KeyAccuracy is the fraction of distinct ciphertext indices that key decodes
// the same way as trueKey.
func KeyAccuracy(key, trueKey cipher.Key, cipherIndices []int) float64 {
	seen := make(map[int]struct{})
	matches := 0
	for _, c := range cipherIndices {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		if c < len(key) && c < len(trueKey) && key[c] == trueKey[c] {
			matches++
		}
	}
	if len(seen) == 0 {
		return 1
	}
	return float64(matches) / float64(len(seen))
}

func alphabetFromName(symbols string) (*alphabet.Alphabet, error) {
	if symbols == "" {
		symbols = alphabet.English
	}
	return alphabet.New(symbols)
}

func newRunID(now time.Time) string {
	return strftime.Format("%Y%m%d-%H%M%S", now) + "-" + uuid.NewString()[:8]
}

func toModelTrace(trace []mcmc.TracePoint) []model.TracePoint {
	out := make([]model.TracePoint, len(trace))
	for i, p := range trace {
		out[i] = model.TracePoint{
			Iteration:    p.Iteration,
			CurrentScore: p.CurrentScore,
			BestScore:    p.BestScore,
			Accepted:     p.Accepted,
		}
	}
	return out
}
