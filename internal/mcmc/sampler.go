package mcmc

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"decipher/internal/alphabet"
	"decipher/internal/bigram"
	"decipher/internal/cipher"
)

type Config struct {
	Iterations int
	// StepSize is the number of transpositions per proposal.
	StepSize int
	Seed     int64
	// PrintEvery is the observer and trace cadence in iterations. Zero
	// disables both, apart from the initial and final trace points.
	PrintEvery int
	Observer   Observer
	// Preview renders the ciphertext under a key for progress snapshots.
	Preview func(cipher.Key) string
}

// ChainState is the mutable part of a chain. Keys are never modified in
// place, so Best may share storage with an earlier Current.
type ChainState struct {
	Current      cipher.Key
	CurrentScore float64
	Best         cipher.Key
	BestScore    float64
}

type TracePoint struct {
	Iteration    int     `json:"iteration"`
	CurrentScore float64 `json:"current_score"`
	BestScore    float64 `json:"best_score"`
	Accepted     int     `json:"accepted"`
}

type Result struct {
	Chain        int
	Seed         int64
	Best         cipher.Key
	BestScore    float64
	InitialScore float64
	FinalScore   float64
	Iterations   int
	Accepted     int
	Rejected     int
	Cancelled    bool
	Trace        []TracePoint
	Warnings     []Warning
}

// Sampler holds the read-only inputs shared by every chain of a run.
type Sampler struct {
	scorer   *Scorer
	warnings []Warning
}

func NewSampler(observed, reference *bigram.Matrix) (*Sampler, error) {
	scorer, err := NewScorer(observed, reference)
	if err != nil {
		return nil, err
	}
	return &Sampler{scorer: scorer, warnings: ModelWarnings(observed, reference)}, nil
}

func (s *Sampler) Scorer() *Scorer { return s.scorer }

// Run executes a single chain seeded with cfg.Seed.
func (s *Sampler) Run(ctx context.Context, cfg Config) (Result, error) {
	warnings, err := cfg.Validate()
	if err != nil {
		return Result{}, err
	}
	chain := newChain(s.scorer, cfg, 0, cfg.Seed)
	res := chain.run(ctx)
	res.Warnings = append(append([]Warning(nil), s.warnings...), warnings...)
	return res, nil
}

// Chain is one Metropolis-Hastings chain. It owns its generator exclusively.
type Chain struct {
	index  int
	seed   int64
	cfg    Config
	scorer *Scorer
	rng    *rand.Rand
	state  ChainState

	iterations int
	accepted   int
	rejected   int
	trace      []TracePoint
}

func newChain(scorer *Scorer, cfg Config, index int, seed int64) *Chain {
	current := cipher.Identity(scorer.Size())
	score := scorer.Score(current)
	return &Chain{
		index:  index,
		seed:   seed,
		cfg:    cfg,
		scorer: scorer,
		rng:    NewRand(seed),
		state: ChainState{
			Current:      current,
			CurrentScore: score,
			Best:         current,
			BestScore:    score,
		},
	}
}

// State returns a snapshot of the chain state.
func (c *Chain) State() ChainState {
	return ChainState{
		Current:      c.state.Current.Clone(),
		CurrentScore: c.state.CurrentScore,
		Best:         c.state.Best.Clone(),
		BestScore:    c.state.BestScore,
	}
}

// Step performs one iteration and reports whether the proposal was accepted.
//
// The best state is promoted from the current state as it stood at the start
// of the step, before this step's accept/reject draw. A newly accepted key
// therefore becomes best one iteration after it is accepted.
func (c *Chain) Step() bool {
	candidate := Propose(c.state.Current, c.rng, c.cfg.StepSize)
	candidateScore := c.scorer.Score(candidate)
	acceptance := math.Min(1, math.Exp(candidateScore-c.state.CurrentScore))

	if c.state.CurrentScore > c.state.BestScore {
		c.state.Best = c.state.Current
		c.state.BestScore = c.state.CurrentScore
	}

	c.iterations++
	if c.rng.Float64() < acceptance {
		c.state.Current = candidate
		c.state.CurrentScore = candidateScore
		c.accepted++
		return true
	}
	c.rejected++
	return false
}

func (c *Chain) run(ctx context.Context) Result {
	initial := c.state.CurrentScore
	c.record()

	done := ctx.Done()
	cancelled := false
	for i := 0; i < c.cfg.Iterations; i++ {
		if done != nil {
			select {
			case <-done:
				cancelled = true
			default:
			}
			if cancelled {
				break
			}
		}

		c.Step()

		if c.cfg.PrintEvery > 0 && c.iterations%c.cfg.PrintEvery == 0 {
			c.record()
			c.notify()
		}
	}
	if last := c.trace[len(c.trace)-1]; last.Iteration != c.iterations {
		c.record()
	}

	return Result{
		Chain:        c.index,
		Seed:         c.seed,
		Best:         c.state.Best.Clone(),
		BestScore:    c.state.BestScore,
		InitialScore: initial,
		FinalScore:   c.state.CurrentScore,
		Iterations:   c.iterations,
		Accepted:     c.accepted,
		Rejected:     c.rejected,
		Cancelled:    cancelled,
		Trace:        c.trace,
	}
}

func (c *Chain) record() {
	c.trace = append(c.trace, TracePoint{
		Iteration:    c.iterations,
		CurrentScore: c.state.CurrentScore,
		BestScore:    c.state.BestScore,
		Accepted:     c.accepted,
	})
}

func (c *Chain) notify() {
	if c.cfg.Observer == nil {
		return
	}
	p := Progress{
		Chain:        c.index,
		Iteration:    c.iterations,
		CurrentScore: c.state.CurrentScore,
		BestScore:    c.state.BestScore,
		Accepted:     c.accepted,
	}
	if c.cfg.Preview != nil {
		p.Preview = c.cfg.Preview(c.state.Current)
	}
	c.cfg.Observer.Observe(p)
}

// DecodePreview returns a Preview function that decodes at most limit
// ciphertext indices under a key.
func DecodePreview(alpha *alphabet.Alphabet, cipherIndices []int, limit int) func(cipher.Key) string {
	if limit > 0 && len(cipherIndices) > limit {
		cipherIndices = cipherIndices[:limit]
	}
	prefix := append([]int(nil), cipherIndices...)
	return func(k cipher.Key) string {
		return alpha.Decode(k.Apply(prefix))
	}
}

// Decrypt applies a decryption key to ciphertext indices and decodes the
// result.
func Decrypt(alpha *alphabet.Alphabet, key cipher.Key, cipherIndices []int) (string, error) {
	if err := key.Validate(alpha.M()); err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return alpha.Decode(key.Apply(cipherIndices)), nil
}
