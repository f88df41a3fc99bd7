package train

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"sddp/policy"
	"sddp/sample"
	"sddp/solve"
)

// Replication is one Monte Carlo evaluation of the trained policy.
type Replication[K comparable] struct {
	Path            []sample.Step[K]
	CumulativeValue float64
}

// SimulateOption configures a simulation.
type SimulateOption func(*simulateOptions)

type simulateOptions struct {
	seed        uint64
	maxDepth    int
	parallelism int
}

// WithSimulationSeed fixes the base seed; worker w samples from seed + w.
func WithSimulationSeed(seed uint64) SimulateOption {
	return func(o *simulateOptions) { o.seed = seed }
}

// WithSimulationDepth bounds replication length on cyclic graphs.
func WithSimulationDepth(depth int) SimulateOption {
	return func(o *simulateOptions) { o.maxDepth = depth }
}

// WithParallelism caps the number of concurrent workers. Parallel execution
// additionally requires every subproblem to be cloneable, since a
// subproblem instance cannot be shared across workers.
func WithParallelism(workers int) SimulateOption {
	return func(o *simulateOptions) {
		if workers > 0 {
			o.parallelism = workers
		}
	}
}

// Simulate evaluates the trained policy over independent scenario
// replications. When the policy graph's subproblems are cloneable the
// replications run on parallel workers, each with its own graph clone and
// random stream; otherwise they run sequentially on the shared graph.
func Simulate[K comparable](ctx context.Context, pg *policy.PolicyGraph[K], replications int,
	options ...SimulateOption) ([]Replication[K], error) {
	if replications < 1 {
		return nil, &ConfigurationError{Reason: "at least one replication is required"}
	}
	opts := &simulateOptions{
		seed:        uint64(time.Now().UnixNano()),
		parallelism: runtime.NumCPU(),
	}
	for _, option := range options {
		option(opts)
	}

	results := make([]Replication[K], replications)
	workers := opts.parallelism
	if workers > replications {
		workers = replications
	}
	if workers > 1 {
		if _, ok := pg.Clone(); !ok {
			workers = 1
		}
	}

	if workers == 1 {
		scheme := newSimulationScheme[K](opts, 0)
		for i := 0; i < replications; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			replication, err := simulateOne(pg, scheme)
			if err != nil {
				return nil, err
			}
			results[i] = replication
		}
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < replications; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		clone, ok := pg.Clone()
		if !ok {
			return nil, fmt.Errorf("policy graph became non-cloneable during setup")
		}
		scheme := newSimulationScheme[K](opts, uint64(w))
		g.Go(func() error {
			for i := range jobs {
				replication, err := simulateOne(clone, scheme)
				if err != nil {
					return err
				}
				results[i] = replication
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func newSimulationScheme[K comparable](opts *simulateOptions, worker uint64) sample.Scheme[K] {
	schemeOptions := []sample.Option[K]{sample.WithSeed[K](opts.seed + worker)}
	if opts.maxDepth > 0 {
		schemeOptions = append(schemeOptions, sample.WithMaxDepth[K](opts.maxDepth))
	}
	return sample.NewInSampleMonteCarlo(schemeOptions...)
}

func simulateOne[K comparable](pg *policy.PolicyGraph[K], scheme sample.Scheme[K]) (Replication[K], error) {
	path, _, err := scheme.Sample(pg)
	if err != nil {
		return Replication[K]{}, fmt.Errorf("sampling replication: %w", err)
	}
	replication := Replication[K]{Path: path}
	incoming := policy.CloneState(pg.InitialState)
	for _, step := range path {
		node := pg.Nodes[step.Node]
		sp := node.Subproblem
		sp.FixIncoming(incoming)
		sp.Parameterize(step.Noise)
		result, err := sp.Solve(false)
		if err != nil {
			return Replication[K]{}, fmt.Errorf("solving node %v: %w", step.Node, err)
		}
		if result.Status != solve.StatusOptimal {
			return Replication[K]{}, &SolveError[K]{Node: step.Node, Status: result.Status}
		}
		replication.CumulativeValue += result.StageObjective
		incoming = policy.CloneState(result.Outgoing)
	}
	return replication, nil
}
