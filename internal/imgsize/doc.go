// Package imgsize defines the domain types, interfaces, and error taxonomy
// shared by the image dimension pipeline: cache entries, per-image outcome
// records, page reports, run totals, and the probe/cache/processor contracts.
package imgsize
