// Package metrics defines the Sink interface used to observe poll cycles.
// Sinks such as the Prometheus sink in infra/metrics record session
// outcomes, irrigation commands, persistence results and cycle summaries.
// Several sinks can be combined with NewMultiSink; NewSink returns a
// MultiSink automatically when more than one sink is configured.
package metrics
