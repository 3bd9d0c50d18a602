package client

// MetricQuery represents a single PromQL query with metadata.
type MetricQuery struct {
	Name        string
	Description string
	Query       string
	Category    string
	Unit        string
}

// Catalog returns the built-in queries used to observe the target itself.
// The performance and load suites resolve their configured query names
// against this catalog.
func Catalog() []MetricQuery {
	return []MetricQuery{
		// Ingestion
		{
			Name:        "samples_appended_rate",
			Description: "Rate of samples appended to the TSDB head per second",
			Query:       `rate(prometheus_tsdb_head_samples_appended_total[1m])`,
			Category:    "ingestion",
			Unit:        "samples/s",
		},
		{
			Name:        "head_series",
			Description: "Number of active series in the TSDB head",
			Query:       `prometheus_tsdb_head_series`,
			Category:    "ingestion",
			Unit:        "series",
		},
		{
			Name:        "wal_fsync_p99",
			Description: "P99 latency of WAL fsync operations",
			Query:       `histogram_quantile(0.99, rate(prometheus_tsdb_wal_fsync_duration_seconds_bucket[1m]))`,
			Category:    "ingestion",
			Unit:        "seconds",
		},
		{
			Name:        "remote_write_failures_rate",
			Description: "Rate of failed remote-write sample deliveries",
			Query:       `rate(prometheus_remote_storage_samples_failed_total[1m])`,
			Category:    "ingestion",
			Unit:        "samples/s",
		},

		// Query engine
		{
			Name:        "instant_up",
			Description: "Trivial instant vector used for latency probing",
			Query:       `up`,
			Category:    "query",
			Unit:        "",
		},
		{
			Name:        "rate_5m",
			Description: "A representative rate query over five minutes",
			Query:       `rate(prometheus_http_requests_total[5m])`,
			Category:    "query",
			Unit:        "req/s",
		},
		{
			Name:        "histogram_p99",
			Description: "A representative histogram quantile computation",
			Query:       `histogram_quantile(0.99, rate(prometheus_http_request_duration_seconds_bucket[5m]))`,
			Category:    "query",
			Unit:        "seconds",
		},
		{
			Name:        "engine_query_duration_p99",
			Description: "P99 of PromQL engine evaluation duration",
			Query:       `histogram_quantile(0.99, rate(prometheus_engine_query_duration_seconds_bucket{slice="inner_eval"}[5m]))`,
			Category:    "query",
			Unit:        "seconds",
		},

		// Scrape pipeline
		{
			Name:        "scrape_duration_p99",
			Description: "P99 scrape duration over all targets",
			Query:       `quantile(0.99, scrape_duration_seconds)`,
			Category:    "scrape",
			Unit:        "seconds",
		},
		{
			Name:        "targets_up_ratio",
			Description: "Fraction of scrape targets currently up",
			Query:       `avg(up)`,
			Category:    "scrape",
			Unit:        "ratio",
		},

		// Resources
		{
			Name:        "process_resident_memory",
			Description: "Resident memory of the Prometheus process",
			Query:       `process_resident_memory_bytes{job="prometheus"}`,
			Category:    "resources",
			Unit:        "bytes",
		},
		{
			Name:        "process_cpu_rate",
			Description: "CPU seconds consumed per second by the Prometheus process",
			Query:       `rate(process_cpu_seconds_total{job="prometheus"}[5m])`,
			Category:    "resources",
			Unit:        "cores",
		},
		{
			Name:        "goroutines",
			Description: "Number of goroutines in the Prometheus process",
			Query:       `go_goroutines{job="prometheus"}`,
			Category:    "resources",
			Unit:        "goroutines",
		},
	}
}

// LookupQuery returns the catalog entry with the given name.
func LookupQuery(name string) (MetricQuery, bool) {
	for _, q := range Catalog() {
		if q.Name == name {
			return q, true
		}
	}
	return MetricQuery{}, false
}

// QueriesByCategory returns catalog entries for one category.
func QueriesByCategory(category string) []MetricQuery {
	var out []MetricQuery
	for _, q := range Catalog() {
		if q.Category == category {
			out = append(out, q)
		}
	}
	return out
}
