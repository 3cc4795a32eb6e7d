package config

import (
	"time"

	"github.com/dispatchlab/fieldops/core/optimizer"
)

// OptimizerConfig tunes the scheduling engine. Zero values fall back to
// the engine defaults.
type OptimizerConfig struct {
	// BudgetSeconds is the wall-clock budget of one optimization run.
	BudgetSeconds int `json:"budget_seconds"`
	// IterationCap bounds local-search passes.
	IterationCap int `json:"iteration_cap"`
	// Alternatives is the number of runner-up candidates kept per
	// assignment for adaptation repairs.
	Alternatives int `json:"alternatives"`
}

// Options converts the section into engine options.
func (c OptimizerConfig) Options() optimizer.Options {
	return optimizer.Options{
		Budget:       time.Duration(c.BudgetSeconds) * time.Second,
		IterationCap: c.IterationCap,
		Alternatives: c.Alternatives,
	}
}
