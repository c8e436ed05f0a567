package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTable(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendResultsRowWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "runs.csv")

	for i := 0; i < 3; i++ {
		info := sampleRun()
		info.RunID = NewRunID()
		require.NoError(t, AppendResultsRow(path, info, sampleSummary()))
	}

	rows := readTable(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, ResultsHeader, rows[0])
	for _, row := range rows[1:] {
		assert.Len(t, row, len(ResultsHeader))
		assert.NotEqual(t, "run_id", row[0])
	}
	assert.NotEqual(t, rows[1][0], rows[2][0])
}

func TestAppendResultsRowValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.csv")
	require.NoError(t, AppendResultsRow(path, sampleRun(), sampleSummary()))

	rows := readTable(t, path)
	require.Len(t, rows, 2)
	row := map[string]string{}
	for i, col := range ResultsHeader {
		row[col] = rows[1][i]
	}
	assert.Equal(t, "threaded", row["mode"])
	assert.Equal(t, "4", row["pool_size"])
	assert.Equal(t, "10", row["requests"])
	assert.Equal(t, "200", row["target_rate"])
	assert.Equal(t, "120.000", row["wall_span_ms"])
	assert.Equal(t, "9.000", row["p99_ms"])
	assert.Equal(t, "1", row["failed"])
	assert.Equal(t, "multi", row["queue_mode"])
	assert.Equal(t, "2024-05-01T12:00:00Z", row["timestamp"])
	assert.Equal(t, "2.000", row["work_time_ms"])
}

func TestAppendResultsRowWritesHeaderIntoEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, AppendResultsRow(path, sampleRun(), sampleSummary()))
	rows := readTable(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, ResultsHeader, rows[0])
}

func TestAppendResultsRowConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.csv")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info := sampleRun()
			info.RunID = NewRunID()
			assert.NoError(t, AppendResultsRow(path, info, sampleSummary()))
		}()
	}
	wg.Wait()

	rows := readTable(t, path)
	require.Len(t, rows, 9)
	headers := 0
	for _, row := range rows {
		if row[0] == "run_id" {
			headers++
		}
	}
	assert.Equal(t, 1, headers)
}
