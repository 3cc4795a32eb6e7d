package metrics

// Package metrics defines interfaces and events for collecting scheduling
// metrics. Sinks like PromSink and InfluxSink record run results, adaptation
// outcomes and technician activity and can be combined with NewMultiSink.
// The factory helpers return a MultiSink automatically when multiple sinks
// are configured.
