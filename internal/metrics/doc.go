// Package metrics provides build observability behind the Recorder
// interface.
//
// Components receive a Recorder through their options and default to
// NoopRecorder, so no call site needs a nil check:
//
//	sched := build.NewScheduler(cfg, build.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// PrometheusRecorder registers its collectors on the given registry and
// HTTPHandler exposes that registry for scraping in watch mode.
package metrics
