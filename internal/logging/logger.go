// Package logging writes run output: structured logs, per-generation
// history files, champion files and the fitness chart.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"walkerevo/internal/ga"
	"walkerevo/internal/genome"
)

// Logger handles all training output and artifact saving
type Logger struct {
	csvPath  string
	jsonPath string
	csvFile  *os.File
	jsonFile *os.File
	log      *slog.Logger

	headerWritten bool
	initialized   bool
}

// NewLogger creates a new logger. Console output goes to log.
func NewLogger(csvPath, jsonPath string, log *slog.Logger) (*Logger, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	l := &Logger{
		csvPath:  csvPath,
		jsonPath: jsonPath,
		log:      log,
	}

	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(csvPath), 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(jsonPath), 0755); err != nil {
		return nil, err
	}
	return l, nil
}

// Init creates the log files, truncating earlier runs.
func (l *Logger) Init() error {
	var err error
	l.csvFile, err = os.Create(l.csvPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", l.csvPath, err)
	}
	l.jsonFile, err = os.OpenFile(l.jsonPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.csvFile.Close()
		return fmt.Errorf("creating %s: %w", l.jsonPath, err)
	}
	l.initialized = true
	return nil
}

// Close closes all log files
func (l *Logger) Close() error {
	var err error
	if l.csvFile != nil {
		err = l.csvFile.Close()
	}
	if l.jsonFile != nil {
		if cerr := l.jsonFile.Close(); err == nil {
			err = cerr
		}
	}
	l.initialized = false
	return err
}

// GenerationSummary is one JSONL line: the history record plus the
// generation's best walker.
type GenerationSummary struct {
	ga.Record
	BestID     uuid.UUID      `json:"bestId"`
	BestName   string         `json:"bestName"`
	BestGenome *genome.Genome `json:"bestGenome,omitempty"`
}

// LogGeneration appends rec to the CSV and JSONL files and prints a one-line
// summary. ranked is fittest first; it may be empty.
func (l *Logger) LogGeneration(rec ga.Record, ranked []*ga.Walker) error {
	if !l.initialized {
		return nil
	}

	rows := []ga.Record{rec}
	if !l.headerWritten {
		if err := gocsv.Marshal(rows, l.csvFile); err != nil {
			return fmt.Errorf("writing history: %w", err)
		}
		l.headerWritten = true
	} else if err := gocsv.MarshalWithoutHeaders(rows, l.csvFile); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}

	summary := GenerationSummary{Record: rec}
	if len(ranked) > 0 {
		best := ranked[0]
		summary.BestID = best.ID
		summary.BestName = best.Name
		summary.BestGenome = &best.Genome
	}
	line, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if _, err := l.jsonFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	l.log.Info(fmt.Sprintf("Gen %4d | Best: %8.1f | Avg: %8.1f | Worst: %8.1f | Std: %6.1f",
		rec.Generation, rec.Best, rec.Average, rec.Worst, rec.StdDev),
		"best", summary.BestName)
	return nil
}

// LogTopK logs the k fittest walkers at debug level.
func (l *Logger) LogTopK(ranked []*ga.Walker, k int) {
	k = min(k, len(ranked))
	for i := 0; i < k; i++ {
		w := ranked[i]
		l.log.Debug("top walker",
			"rank", i+1,
			"name", w.Name,
			"fitness", w.Fitness,
			"leg_length", w.Genome.LegLength,
			"body_width", w.Genome.BodyWidth,
		)
	}
}

// Champion is the saved form of a walker worth keeping.
type Champion struct {
	Generation int           `json:"generation"`
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	Fitness    float64       `json:"fitness"`
	Genome     genome.Genome `json:"genome"`
}

// Walker rebuilds a live walker with the champion's identity.
func (c Champion) Walker() *ga.Walker {
	return &ga.Walker{ID: c.ID, Name: c.Name, Genome: c.Genome, Fitness: c.Fitness, Alive: true}
}

// SaveChampion saves the walker and its genome to a file
func SaveChampion(path string, w *ga.Walker, gen int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(Champion{
		Generation: gen,
		ID:         w.ID,
		Name:       w.Name,
		Fitness:    w.Fitness,
		Genome:     w.Genome,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadChampion loads a champion file. A genome outside the gene bounds is
// rejected.
func LoadChampion(path string) (Champion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Champion{}, err
	}
	var c Champion
	if err := json.Unmarshal(data, &c); err != nil {
		return Champion{}, fmt.Errorf("champion %s: %w", path, err)
	}
	if err := c.Genome.Validate(); err != nil {
		return Champion{}, fmt.Errorf("champion %s: %w", path, err)
	}
	return c, nil
}
