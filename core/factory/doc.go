// Package factory provides a small generic registry used to instantiate
// modules from configuration. Modules are defined by a type string and a map
// of raw settings. Factories decode the settings into typed structs and
// return the concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[travel.Estimator]()
//	reg.Register("haversine", func(conf map[string]any) (travel.Estimator, error) {
//	    var c struct{ SpeedKmh float64 `json:"speed_kmh"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return travel.NewHaversineEstimator(c.SpeedKmh), nil
//	})
//	est, err := reg.Create(factory.ModuleConfig{Type: "haversine", Conf: map[string]any{"speed_kmh": 40}})
package factory
