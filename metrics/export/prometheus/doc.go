// Package prometheus exports authcore engine metrics through client_golang.
//
// [Collector] implements prometheus.Collector over Engine.MetricsSnapshot; it
// emits const metrics on every scrape and keeps no state of its own. Register it
// on a registry of your choice, or use [Handler] for a dedicated one.
package prometheus
