package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"github.com/torosent/poolbench/internal/metrics"
)

// ResultsHeader is the column layout of the results table.
var ResultsHeader = []string{
	"run_id",
	"timestamp",
	"mode",
	"pool_size",
	"requests",
	"target_rate",
	"wall_span_ms",
	"min_ms",
	"max_ms",
	"mean_ms",
	"p99_ms",
	"completed",
	"failed",
	"stage_envelope_ms",
	"arrival",
	"warm_up",
	"queue_mode",
	"seed",
	"work_time_ms",
}

// ResultsRow builds the table row for one run.
func ResultsRow(info RunInfo, sum metrics.Summary) []string {
	return []string{
		info.RunID,
		info.Timestamp.UTC().Format(time.RFC3339),
		info.Mode,
		strconv.Itoa(info.PoolSize),
		strconv.Itoa(info.Requests),
		strconv.FormatFloat(info.Rate, 'f', -1, 64),
		formatMs(sum.Span),
		formatMs(sum.Latency.Min),
		formatMs(sum.Latency.Max),
		formatMs(sum.Latency.Mean),
		formatMs(sum.Latency.P99),
		strconv.Itoa(sum.Completed),
		strconv.Itoa(sum.Failed),
		formatMs(sum.Envelope),
		info.Arrival,
		strconv.FormatBool(info.WarmUp),
		info.QueueMode(),
		strconv.FormatInt(info.Seed, 10),
		formatMs(info.WorkTime),
	}
}

// AppendResultsRow appends one row to the results table at path. The
// header is written first when the file is new or empty. Concurrent
// writers, including other processes, are serialized through path+".lock".
func AppendResultsRow(path string, info RunInfo, sum metrics.Summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock results table: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	writeHeader := false
	st, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeHeader = true
	case err != nil:
		return fmt.Errorf("stat results table: %w", err)
	case st.Size() == 0:
		writeHeader = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open results table: %w", err)
	}

	w := csv.NewWriter(f)
	if writeHeader {
		_ = w.Write(ResultsHeader)
	}
	_ = w.Write(ResultsRow(info, sum))
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write results row: %w", err)
	}
	return f.Close()
}
