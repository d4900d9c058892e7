package mcmc

import (
	"context"
	"fmt"
	"sync"
)

// MultiResult collects independent chains. Best is the chain with the highest
// best score; ties go to the lowest chain index.
type MultiResult struct {
	Best     Result
	Chains   []Result
	Warnings []Warning
}

// Cancelled reports whether any chain stopped early.
func (r MultiResult) Cancelled() bool {
	for _, c := range r.Chains {
		if c.Cancelled {
			return true
		}
	}
	return false
}

// RunChains runs chains independent chains on at most workers goroutines.
// Chain i is seeded with DeriveSeed(cfg.Seed, i). The scorer is shared
// read-only; every chain owns its generator and state.
func (s *Sampler) RunChains(ctx context.Context, cfg Config, chains, workers int) (MultiResult, error) {
	if chains <= 0 {
		return MultiResult{}, fmt.Errorf("%w: chain count must be > 0, got %d", ErrInvalidConfig, chains)
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return MultiResult{}, err
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > chains {
		workers = chains
	}

	jobs := make(chan int)
	results := make(chan Result, chains)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				chain := newChain(s.scorer, cfg, idx, DeriveSeed(cfg.Seed, idx))
				results <- chain.run(ctx)
			}
		}()
	}

	for i := 0; i < chains; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := MultiResult{
		Chains:   make([]Result, chains),
		Warnings: append(append([]Warning(nil), s.warnings...), warnings...),
	}
	for res := range results {
		out.Chains[res.Chain] = res
	}
	out.Best = out.Chains[0]
	for _, res := range out.Chains[1:] {
		if res.BestScore > out.Best.BestScore {
			out.Best = res
		}
	}
	out.Best.Warnings = out.Warnings
	return out, nil
}
