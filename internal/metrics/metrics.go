// Package metrics defines the collector seam used by the scoring
// pipeline, with a no-op default and a Prometheus implementation.
package metrics

import "time"

// Collector receives operational measurements from the pipeline.
type Collector interface {
	RecordScoringDuration(platform string, d time.Duration)
	RecordRecommendation(recommendation string)
	RecordCacheHit(class string)
	RecordCacheMiss(class string)
	RecordError(operation, errType string)
	RecordQueueDepth(depth int64)
	RecordDeadLetter()
	RecordCircuitState(state string)
}

// Noop is a no-op implementation of Collector.
type Noop struct{}

func (Noop) RecordScoringDuration(string, time.Duration) {}
func (Noop) RecordRecommendation(string)                 {}
func (Noop) RecordCacheHit(string)                       {}
func (Noop) RecordCacheMiss(string)                      {}
func (Noop) RecordError(string, string)                  {}
func (Noop) RecordQueueDepth(int64)                      {}
func (Noop) RecordDeadLetter()                           {}
func (Noop) RecordCircuitState(string)                   {}
