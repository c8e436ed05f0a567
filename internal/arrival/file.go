package arrival

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

var (
	// ErrPlanTooShort is returned when a plan file holds fewer than n values.
	ErrPlanTooShort = errors.New("arrival: plan file has too few entries")
	// ErrPlanTooLong is returned when a plan file holds more than n values.
	ErrPlanTooLong = errors.New("arrival: plan file has too many entries")
	// ErrPlanMalformed is returned for non-numeric or negative entries.
	ErrPlanMalformed = errors.New("arrival: plan file is malformed")
)

// PlanPath returns the plan file for a request count.
func PlanPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("dist_%d.txt", n))
}

// LoadPlan reads exactly n delays from path. A missing file yields an error
// matching os.ErrNotExist.
func LoadPlan(path string, n int) (Plan, error) {
	if _, err := os.Stat(path); err != nil {
		return Plan{}, err
	}

	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return Plan{}, fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return Plan{}, err
	}
	defer f.Close()

	values := make([]int64, 0, n)
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		tok := sc.Text()
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil || v < 0 {
			return Plan{}, fmt.Errorf("%w: entry %d is %q", ErrPlanMalformed, len(values), tok)
		}
		if len(values) == n {
			return Plan{}, fmt.Errorf("%w: expected %d", ErrPlanTooLong, n)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return Plan{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(values) < n {
		return Plan{}, fmt.Errorf("%w: got %d, expected %d", ErrPlanTooShort, len(values), n)
	}
	return FromMicros(values), nil
}

// SavePlan writes a plan to path, replacing any previous file atomically.
func SavePlan(path string, p Plan) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	var sb strings.Builder
	for i, v := range p.Micros() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatInt(v, 10))
	}
	sb.WriteByte('\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
