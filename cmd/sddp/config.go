package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sddp/graph"
	"sddp/piecewise"
	"sddp/policy"
	"sddp/risk"
	"sddp/sample"
	"sddp/solve"
	"sddp/train"
)

// Config is the YAML model description consumed by the train command.
type Config struct {
	Graph      GraphConfig      `yaml:"graph"`
	Model      ModelConfig      `yaml:"model"`
	Training   TrainingConfig   `yaml:"training"`
	Simulation SimulationConfig `yaml:"simulation"`
	Output     OutputConfig     `yaml:"output"`
}

type GraphConfig struct {
	// Type is "linear" or "unicyclic".
	Type             string  `yaml:"type"`
	Stages           int     `yaml:"stages"`
	CycleProbability float64 `yaml:"cycle_probability"`
}

// ModelConfig describes the single-reservoir hydro-thermal model: reservoir
// capacity, per-stage demand, thermal cost, and the stagewise-independent
// inflow distribution.
type ModelConfig struct {
	InitialVolume float64  `yaml:"initial_volume"`
	Capacity      float64  `yaml:"capacity"`
	Demand        float64  `yaml:"demand"`
	ThermalCost   float64  `yaml:"thermal_cost"`
	Inflows       []Inflow `yaml:"inflows"`
	CostToGoUpper float64  `yaml:"cost_to_go_upper"`
}

type Inflow struct {
	Value       float64 `yaml:"value"`
	Probability float64 `yaml:"probability"`
}

// Duration parses YAML scalars like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

type TrainingConfig struct {
	Iterations           int           `yaml:"iterations"`
	TimeLimit            Duration      `yaml:"time_limit"`
	StallingWindow       int           `yaml:"stalling_window"`
	StallingTolerance    float64       `yaml:"stalling_tolerance"`
	Seed                 uint64        `yaml:"seed"`
	MaxDepth             int           `yaml:"max_depth"`
	CycleDelta           float64       `yaml:"cycle_delta"`
	RefineAtSimilarNodes bool          `yaml:"refine_at_similar_nodes"`
	Risk                 RiskConfig    `yaml:"risk"`
}

// RiskConfig selects the node risk measure: "expectation" (default),
// "worst_case", "avar" (requires beta), or "eavar" (requires beta and
// lambda).
type RiskConfig struct {
	Measure string  `yaml:"measure"`
	Beta    float64 `yaml:"beta"`
	Lambda  float64 `yaml:"lambda"`
}

type SimulationConfig struct {
	Replications int `yaml:"replications"`
	Parallelism  int `yaml:"parallelism"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// LoadConfig reads and validates a YAML model description.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Graph.Type {
	case "linear", "unicyclic":
	default:
		return fmt.Errorf("unknown graph type %q, expected linear or unicyclic", c.Graph.Type)
	}
	if c.Graph.Stages < 1 {
		return fmt.Errorf("graph needs at least 1 stage, got %d", c.Graph.Stages)
	}
	if len(c.Model.Inflows) == 0 {
		return fmt.Errorf("model needs at least one inflow term")
	}
	if c.Training.Iterations < 1 && c.Training.TimeLimit <= 0 && c.Training.StallingWindow < 1 {
		return fmt.Errorf("training needs an iteration limit, a time limit, or a stalling window")
	}
	if c.Graph.Type == "unicyclic" && c.Training.MaxDepth < 1 {
		return fmt.Errorf("a cyclic graph needs training.max_depth to bound scenario length")
	}
	return nil
}

// buildGraph constructs the policy graph topology described by the config.
func (c *Config) buildGraph() (*graph.Graph[int], error) {
	if c.Graph.Type == "unicyclic" {
		return graph.UnicyclicLinear(c.Graph.Stages, c.Graph.CycleProbability)
	}
	return graph.Linear(c.Graph.Stages)
}

// buildPolicy assembles the trainable hydro-thermal policy graph.
func (c *Config) buildPolicy() (*policy.PolicyGraph[int], error) {
	g, err := c.buildGraph()
	if err != nil {
		return nil, err
	}
	noises := make([]policy.Noise, len(c.Model.Inflows))
	for i, inflow := range c.Model.Inflows {
		noises[i] = policy.Noise{Term: inflow.Value, Probability: inflow.Probability}
	}
	upper := c.Model.CostToGoUpper
	if upper <= 0 {
		upper = 1e9
	}
	return policy.Build(g, solve.Minimize,
		map[string]float64{piecewise.StateName: c.Model.InitialVolume},
		func(int) (policy.NodeSpec, error) {
			sp := piecewise.NewHydro(piecewise.HydroConfig{
				Capacity:    c.Model.Capacity,
				Demand:      c.Model.Demand,
				ThermalCost: c.Model.ThermalCost,
			})
			return policy.NodeSpec{Subproblem: sp, Noises: noises}, nil
		},
		policy.WithCostToGoBounds(0, upper))
}

func (c *Config) riskMeasure() (risk.Measure, error) {
	switch c.Training.Risk.Measure {
	case "", "expectation":
		return risk.Expectation{}, nil
	case "worst_case":
		return risk.WorstCase{}, nil
	case "avar":
		m, err := risk.NewAVaR(c.Training.Risk.Beta)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "eavar":
		m, err := risk.NewEAVaR(c.Training.Risk.Lambda, c.Training.Risk.Beta)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown risk measure %q", c.Training.Risk.Measure)
	}
}

// trainOptions translates the config into training options.
func (c *Config) trainOptions() ([]train.Option[int], error) {
	var options []train.Option[int]
	if c.Training.Iterations > 0 {
		options = append(options, train.WithIterationLimit[int](c.Training.Iterations))
	}
	if c.Training.TimeLimit > 0 {
		options = append(options, train.WithTimeLimit[int](time.Duration(c.Training.TimeLimit)))
	}
	if c.Training.StallingWindow > 0 {
		options = append(options, train.WithStoppingRules[int](
			train.BoundStalling(c.Training.StallingWindow, c.Training.StallingTolerance)))
	}
	if c.Training.CycleDelta > 0 {
		options = append(options, train.WithCycleDiscretizationDelta[int](c.Training.CycleDelta))
	}
	if c.Training.RefineAtSimilarNodes {
		options = append(options, train.WithRefineAtSimilarNodes[int]())
	}
	if c.Training.Seed > 0 {
		options = append(options, train.WithSeed[int](c.Training.Seed))
	}

	schemeOptions := []sample.Option[int]{}
	if c.Training.Seed > 0 {
		schemeOptions = append(schemeOptions, sample.WithSeed[int](c.Training.Seed))
	}
	if c.Training.MaxDepth > 0 {
		schemeOptions = append(schemeOptions, sample.WithMaxDepth[int](c.Training.MaxDepth))
	}
	options = append(options, train.WithSamplingScheme[int](
		sample.NewInSampleMonteCarlo(schemeOptions...)))

	measure, err := c.riskMeasure()
	if err != nil {
		return nil, err
	}
	options = append(options, train.WithRiskMeasure[int](measure))
	return options, nil
}
