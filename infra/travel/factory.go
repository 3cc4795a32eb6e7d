package travel

import (
	"time"

	"github.com/dispatchlab/fieldops/auth"
	"github.com/dispatchlab/fieldops/core/factory"
	coretravel "github.com/dispatchlab/fieldops/core/travel"
)

// init registers built-in travel estimators.
func init() {
	_ = coretravel.RegisterEstimator("haversine", func(conf map[string]any) (coretravel.Estimator, error) {
		var c struct {
			SpeedKmh float64 `json:"speed_kmh"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return coretravel.NewHaversineEstimator(c.SpeedKmh), nil
	})

	_ = coretravel.RegisterEstimator("matrix", func(conf map[string]any) (coretravel.Estimator, error) {
		var c struct {
			URL            string `json:"url"`
			TimeoutSeconds int    `json:"timeout_seconds"`
			ClientID       string `json:"client_id"`
			ClientSecret   string `json:"client_secret"`
			AuthURL        string `json:"auth_url"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		var cred *auth.ClientCred
		if c.ClientID != "" {
			cred = auth.NewClientCred(auth.Conf{ClientID: c.ClientID, ClientSecret: c.ClientSecret, AuthURL: c.AuthURL})
		}
		return NewMatrixProvider(c.URL, time.Duration(c.TimeoutSeconds)*time.Second, cred), nil
	})
}
