package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/atomsai/testflow/internal/ctxlog"
)

// Writer persists run reports into one output directory. Filenames are
// qualified by run ID, so repeated runs against the same directory never
// collide. Each file is written to a temporary path and renamed into place:
// a fully written report file never appears half-written.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// ReportPath returns the path of the JSON report for a run ID.
func (w *Writer) ReportPath(runID string) string {
	return filepath.Join(w.dir, "report_"+runID+".json")
}

// MeasurementsPath returns the path of the CSV measurement table for a run ID.
func (w *Writer) MeasurementsPath(runID string) string {
	return filepath.Join(w.dir, "measurements_"+runID+".csv")
}

// Write lands the report and its measurement table. A test run whose
// results cannot be recorded has no value, so any failure here is fatal to
// the run.
func (w *Writer) Write(ctx context.Context, rep *RunReport) error {
	logger := ctxlog.FromContext(ctx)

	if err := w.writeJSON(rep); err != nil {
		return err
	}
	if err := w.writeCSV(rep); err != nil {
		return err
	}
	logger.Info("Run report written.",
		"report", w.ReportPath(rep.RunID),
		"measurements", w.MeasurementsPath(rep.RunID),
		"results", len(rep.Results),
	)
	return nil
}

func (w *Writer) writeJSON(rep *RunReport) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return w.atomicWrite(w.ReportPath(rep.RunID), data)
}

func (w *Writer) writeCSV(rep *RunReport) error {
	tmp, err := os.CreateTemp(w.dir, ".tmp-measurements-*")
	if err != nil {
		return fmt.Errorf("creating measurement file: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	header := []string{"timestamp", "line", "alias", "name", "value", "status", "error"}
	if err := cw.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("writing measurement header: %w", err)
	}
	for _, m := range rep.Results {
		for _, name := range sortedValueNames(m.Values) {
			row := []string{
				m.Timestamp.Format(time.RFC3339Nano),
				strconv.Itoa(m.Line),
				m.Alias,
				name,
				formatCell(m.Values[name]),
				m.Status,
				m.Error,
			}
			if err := cw.Write(row); err != nil {
				tmp.Close()
				return fmt.Errorf("writing measurement row: %w", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing measurements: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing measurement file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.MeasurementsPath(rep.RunID)); err != nil {
		return fmt.Errorf("publishing measurement file: %w", err)
	}
	return nil
}

func (w *Writer) atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(w.dir, ".tmp-report-*")
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publishing report: %w", err)
	}
	return nil
}

func sortedValueNames(values map[string]any) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatCell(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	case json.RawMessage:
		return string(n)
	default:
		return fmt.Sprintf("%v", n)
	}
}
