// Package api hosts the HTTP adapter around a Processor. Notable routes:
//   - POST /v1/pages/{page_id...} rewrites the HTML request body.
//   - POST /v1/runs/finalize ends the current run and starts a fresh one.
//   - GET /v1/runs/current reports totals and pages of the current run.
//   - GET /healthz for probes and GET /metrics for Prometheus scraping.
package api
