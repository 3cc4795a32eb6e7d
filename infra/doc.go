// Package infra contains technical adapters such as the MQTT gateway,
// travel-time providers, run store backends and metrics exporters.
// These packages should depend only on the interfaces defined in the
// core packages.
package infra
