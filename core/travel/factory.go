package travel

import "github.com/dispatchlab/fieldops/core/factory"

var estimatorRegistry = factory.NewRegistry[Estimator]()

// RegisterEstimator adds an estimator factory identified by name.
func RegisterEstimator(name string, f factory.Factory[Estimator]) error {
	return estimatorRegistry.Register(name, f)
}

// NewEstimator creates the estimator named by cfg. An empty type yields
// nil without error, meaning no primary provider is configured.
func NewEstimator(cfg factory.ModuleConfig) (Estimator, error) {
	if cfg.Type == "" {
		return nil, nil
	}
	return estimatorRegistry.Create(cfg)
}
