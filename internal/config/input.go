package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dpgo/drawdown-planner/internal/domain"
)

// ScenarioFile is the on-disk shape of a planning run: the scenario itself
// plus the optional simulation, Monte Carlo, and optimizer sections.
type ScenarioFile struct {
	Scenario   domain.ScenarioParameters `yaml:"scenario" json:"scenario"`
	Simulation domain.SimulationOptions  `yaml:"simulation" json:"simulation"`
	MonteCarlo domain.MonteCarloOptions  `yaml:"monte_carlo" json:"monte_carlo"`
	Optimizer  *domain.OptimizerConfig   `yaml:"optimizer,omitempty" json:"optimizer,omitempty"`
}

// InputParser handles parsing of scenario configuration files.
type InputParser struct{}

// NewInputParser creates a new input parser.
func NewInputParser() *InputParser {
	return &InputParser{}
}

// LoadFromFile loads a scenario file from YAML, applies defaults, and
// validates it. Validation failures surface here, before any simulation
// starts.
func (ip *InputParser) LoadFromFile(filename string) (*ScenarioFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return ip.Load(data)
}

// Load parses raw YAML bytes.
func (ip *InputParser) Load(data []byte) (*ScenarioFile, error) {
	var file ScenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	ApplyDefaults(&file)

	if err := file.Scenario.Validate(); err != nil {
		return nil, fmt.Errorf("scenario validation failed: %w", err)
	}
	return &file, nil
}

// ApplyDefaults fills the documented defaults for omitted optional fields.
func ApplyDefaults(file *ScenarioFile) {
	s := &file.Scenario

	if s.WithdrawalMode == "" {
		if s.WithdrawalRate.IsPositive() {
			s.WithdrawalMode = domain.WithdrawalPercentage
		} else {
			s.WithdrawalMode = domain.WithdrawalFixedAmount
		}
	}
	if s.Tax.LotSelection == "" {
		s.Tax.LotSelection = domain.LotSelectionFIFO
	}
	if s.Tax.ChurchTax == "" {
		s.Tax.ChurchTax = domain.ChurchTaxNone
	}
	if s.Tax.TaxableFraction.IsZero() {
		s.Tax.TaxableFraction = decimal.NewFromFloat(0.70)
	}
	if s.Tax.BaselineRate.IsZero() {
		s.Tax.BaselineRate = decimal.NewFromFloat(0.0253)
	}
	if s.Preservation.Enabled {
		if s.Preservation.ThresholdFraction.IsZero() {
			s.Preservation.ThresholdFraction = decimal.NewFromFloat(0.70)
		}
		if s.Preservation.RecoveryBand.IsZero() {
			s.Preservation.RecoveryBand = decimal.NewFromFloat(0.05)
		}
		if s.Preservation.ReductionFraction.IsZero() {
			s.Preservation.ReductionFraction = decimal.NewFromFloat(0.20)
		}
	}

	if file.MonteCarlo.Iterations <= 0 {
		file.MonteCarlo.Iterations = 1000
	}
	if file.MonteCarlo.Volatility.IsZero() {
		file.MonteCarlo.Volatility = decimal.NewFromFloat(0.15)
	}
	if file.MonteCarlo.RuinWealthFraction.IsZero() {
		file.MonteCarlo.RuinWealthFraction = decimal.NewFromFloat(0.10)
	}
	if file.MonteCarlo.ShortfallAbsoluteFloor.IsZero() {
		file.MonteCarlo.ShortfallAbsoluteFloor = decimal.NewFromInt(1)
	}
	if file.MonteCarlo.ShortfallRelativeFloor.IsZero() {
		file.MonteCarlo.ShortfallRelativeFloor = decimal.NewFromFloat(0.05)
	}
}
