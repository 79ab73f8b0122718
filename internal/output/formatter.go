package output

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dpgo/drawdown-planner/internal/domain"
)

// Report bundles everything a formatter may render. Formatters only ever read
// the public result contracts; internal ledger and PRNG state never reach
// this package.
type Report struct {
	Scenario   *domain.ScenarioParameters `json:"scenario,omitempty"`
	Run        *domain.SimulationRun      `json:"run,omitempty"`
	MonteCarlo *domain.MonteCarloResult   `json:"monte_carlo,omitempty"`
	Candidate  *domain.Candidate          `json:"candidate,omitempty"`
	// NoCandidate marks the optimizer's "no qualifying candidate" outcome,
	// distinct from an absent optimizer section.
	NoCandidate bool `json:"no_candidate,omitempty"`
}

// Envelope wraps a report with identification metadata for export.
type Envelope struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Report      *Report   `json:"report"`
}

// NewEnvelope stamps a report with a fresh identifier.
func NewEnvelope(report *Report) *Envelope {
	return &Envelope{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Report:      report,
	}
}

// Formatter renders a report as bytes. Implementations should be pure aside
// from deterministic formatting.
type Formatter interface {
	Format(report *Report) ([]byte, error)
	// Name returns a short identifier for logging and CLI selection.
	Name() string
}

// GetFormatterByName fetches a registered formatter.
func GetFormatterByName(name string) (Formatter, error) {
	switch name {
	case "table", "console", "":
		return ConsoleFormatter{}, nil
	case "json":
		return JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want table or json)", name)
	}
}
