package train

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// Writer persists training logs as CSV under a per-run directory.
type Writer struct {
	dir string
}

// NewWriter creates a fresh run directory named by a random identifier
// under baseDir.
func NewWriter(baseDir string) (*Writer, error) {
	dir := filepath.Join(baseDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the run directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteLog writes one row per training iteration to iterations.csv.
func (w *Writer) WriteLog(log []Iteration) error {
	path := filepath.Join(w.dir, "iterations.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	header := []string{"iteration", "bound", "simulation_value", "elapsed"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write log header: %w", err)
	}
	for _, entry := range log {
		row := []string{
			strconv.Itoa(entry.Number),
			strconv.FormatFloat(entry.Bound, 'g', -1, 64),
			strconv.FormatFloat(entry.SimulationValue, 'g', -1, 64),
			entry.Elapsed.String(),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write log row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
