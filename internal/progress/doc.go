// Package progress carries image discovery and resolution notifications from
// the pipeline to pluggable sinks (terminal bar, Prometheus, logs). The Hub
// batches events on a background goroutine so reporting never blocks probes.
package progress
