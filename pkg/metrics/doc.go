/*
Package metrics defines and registers docpipe's Prometheus metrics:
job throughput and latency by kind, worker pool occupancy, quota
rejections, storage usage, and API request counts. Metrics are exposed
via Handler for scraping.

A package-level Timer tracks elapsed time and reports it to a Histogram
or HistogramVec; Collector periodically refreshes gauges that aren't
naturally updated on the request path (storage bytes used per subtree).
Health/readiness/liveness are tracked separately via HealthChecker,
RegisterComponent/UpdateComponent, and the Health/Ready/Liveness HTTP
handlers, mirroring the same component-registry pattern used for health
exposition.
*/
package metrics
