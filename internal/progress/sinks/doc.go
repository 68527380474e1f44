// Package sinks implements progress consumers: a terminal progress bar,
// Prometheus collectors, and structured logging. Each sink satisfies the
// progress.Sink interface.
package sinks
