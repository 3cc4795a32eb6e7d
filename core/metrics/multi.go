package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []RunSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...RunSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordAdaptation forwards adaptation outcomes when supported by the sink.
func (m *MultiSink) RecordAdaptation(ev AdaptationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(AdaptationRecorder); ok {
			if err := rec.RecordAdaptation(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordLocationUpdate forwards location reports when supported by the sink.
func (m *MultiSink) RecordLocationUpdate(ev LocationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(LocationRecorder); ok {
			if err := rec.RecordLocationUpdate(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordNotice forwards notice delivery attempts when supported by the sink.
func (m *MultiSink) RecordNotice(ev NoticeEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(NoticeRecorder); ok {
			if err := rec.RecordNotice(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
