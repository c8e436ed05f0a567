// Package metrics collects per-request timings for a benchmark run and
// reduces them to summary statistics.
//
// A [Collector] is sized for the planned request count. Each finished
// request is recorded once under its request id, from any goroutine:
//
//	c := metrics.NewCollector(metrics.Options{Requests: n, Profile: true})
//	c.Record(id, start, end, report, err)
//
// [Collector.Summarize] reduces the records to a [Summary]: end-to-end
// latency min/max/mean and percentiles over completed requests, failure
// counts, the wall span from first start to last end, and, with profiling
// on, per-stage statistics plus the batch-wide stage envelope. Failed
// requests count toward the total but never toward latency. Summarize is
// pure over the recorded data, so calling it twice gives the same answer.
//
// [Collector.Series] exposes the raw per-request columns, one value per
// request id, with NaN where a value is absent.
//
// [Collector.Snapshot] is a cheap live view for progress output.
package metrics
