package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"walkerevo/internal/config"
	"walkerevo/internal/eval"
	"walkerevo/internal/ga"
	"walkerevo/internal/logging"
	"walkerevo/internal/sim"
	"walkerevo/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to config file (embedded defaults when empty)")
	championPath := flag.String("champion", "", "path to champion JSON")
	snapshotPath := flag.String("snapshot", "", "path to population snapshot JSON")
	index := flag.Int("index", -1, "walker index in the snapshot, -1 picks the best score")
	tracePath := flag.String("trace", "", "replay a saved trace instead of a walker")
	seed := flag.Int64("seed", 12345, "motor noise seed")
	every := flag.Int("every", 6, "keep one frame every n physics steps")
	delay := flag.Int("delay", 50, "delay between frames in milliseconds")
	noDisplay := flag.Bool("no-display", false, "run without display (just print stats)")
	out := flag.String("out", "", "save the recorded trace to this file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()

	var tr *sim.Trace
	switch {
	case *tracePath != "":
		tr, err = replay(ctx, *tracePath)
	default:
		var w *ga.Walker
		w, err = loadWalker(*championPath, *snapshotPath, *index, *seed)
		if err == nil {
			fmt.Printf("Loaded %s (fitness=%.2f)\n", w.Name, w.Fitness)
			ev := eval.NewEvaluator(cfg.Eval, cfg.Physics, cfg.Round.Config, cfg.Motor, cfg.Fitness, *seed)
			tr, err = ev.EvaluateWithTrace(ctx, []*ga.Walker{w}, *seed, *every)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !*noDisplay {
		display := NewDisplay(64, 14)
		frameDelay := time.Duration(*delay) * time.Millisecond
		for _, f := range tr.Frames {
			display.Render(tr, f)
			time.Sleep(frameDelay)
		}
	}
	printStats(tr)

	if *out != "" {
		if err := tr.Save(*out); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving trace: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Trace saved to %s\n", *out)
	}
}

// loadWalker picks the walker to replay from a champion file or a snapshot.
func loadWalker(championPath, snapshotPath string, index int, seed int64) (*ga.Walker, error) {
	switch {
	case championPath != "":
		c, err := logging.LoadChampion(championPath)
		if err != nil {
			return nil, err
		}
		return c.Walker(), nil
	case snapshotPath != "":
		s, err := snapshot.Load(snapshotPath)
		if err != nil {
			return nil, err
		}
		if len(s.Population) == 0 {
			return nil, fmt.Errorf("snapshot %s has no walkers", snapshotPath)
		}
		if index < 0 {
			entries := append([]snapshot.Entry(nil), s.Population...)
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
			return entryWalker(entries[0], seed), nil
		}
		if index >= len(s.Population) {
			return nil, fmt.Errorf("index %d out of range, snapshot has %d walkers", index, len(s.Population))
		}
		return entryWalker(s.Population[index], seed), nil
	}
	return nil, errors.New("one of -champion, -snapshot or -trace is required")
}

func entryWalker(e snapshot.Entry, seed int64) *ga.Walker {
	w := ga.NewWalker(e.Genome, e.Name, rand.New(rand.NewSource(seed)))
	w.Fitness = e.Score
	return w
}

// replay re-runs a saved trace and reports whether it reproduced.
func replay(ctx context.Context, path string) (*sim.Trace, error) {
	orig, err := sim.LoadTrace(path)
	if err != nil {
		return nil, err
	}
	again, err := orig.Playback(ctx)
	if err != nil {
		return nil, err
	}
	a, okA := orig.Final()
	b, okB := again.Final()
	if okA && okB && samePoses(a, b) {
		fmt.Printf("Replay of %s matches the recorded run\n", path)
	} else {
		fmt.Printf("Replay of %s diverged from the recorded run\n", path)
	}
	return again, nil
}

func samePoses(a, b sim.Frame) bool {
	if a.Step != b.Step || len(a.Poses) != len(b.Poses) {
		return false
	}
	for i := range a.Poses {
		if len(a.Poses[i]) != len(b.Poses[i]) {
			return false
		}
		for j := range a.Poses[i] {
			if a.Poses[i][j] != b.Poses[i][j] {
				return false
			}
		}
	}
	return true
}

func printStats(tr *sim.Trace) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════")
	for i, w := range tr.Walkers {
		fmt.Printf("  %s: score %.2f\n", w.Name, w.Score)
		if len(tr.Frames) == 0 || len(tr.Frames[0].Poses[i]) == 0 {
			continue
		}
		first := tr.Frames[0].Poses[i][0]
		last, _ := tr.Final()
		if len(last.Poses[i]) == 0 {
			continue
		}
		end := last.Poses[i][0]
		fmt.Printf("  Torso: x %.2f -> %.2f (%+.2f), y %.2f, angle %.2f\n",
			first.X, end.X, end.X-first.X, end.Y, end.Angle)
	}
	fmt.Printf("  Frames: %d, every %d steps\n", len(tr.Frames), tr.Every)
	fmt.Println("═══════════════════════════════════")
}

// Display handles terminal rendering
type Display struct {
	width  int
	height int
}

// NewDisplay creates a new display
func NewDisplay(width, height int) *Display {
	return &Display{width: width, height: height}
}

const (
	colsPerUnit = 4.0
	rowsPerUnit = 2.0
)

// Render draws the first walker of the frame, centred on its torso.
func (d *Display) Render(tr *sim.Trace, f sim.Frame) {
	clearScreen()
	if len(f.Poses) == 0 || len(f.Poses[0]) == 0 {
		return
	}
	centre := f.Poses[0][0].X
	ground := tr.Physics.GroundY

	grid := make([][]rune, d.height)
	for y := range grid {
		grid[y] = []rune(strings.Repeat(" ", d.width))
	}
	plot := func(x, y float64, c rune) {
		col := int(math.Round((x-centre)*colsPerUnit)) + d.width/2
		row := d.height - 1 - int(math.Round((y-ground)*rowsPerUnit))
		if col >= 0 && col < d.width && row >= 0 && row < d.height {
			grid[row][col] = c
		}
	}
	for i := len(f.Poses[0]) - 1; i >= 0; i-- {
		c := '#'
		if i == 0 {
			c = 'O'
		}
		p := f.Poses[0][i]
		plot(p.X, p.Y, c)
	}

	fmt.Println("┌" + strings.Repeat("─", d.width) + "┐")
	for _, row := range grid {
		fmt.Println("│" + string(row) + "│")
	}
	fmt.Println("└" + strings.Repeat("═", d.width) + "┘")

	name := ""
	if len(tr.Walkers) > 0 {
		name = tr.Walkers[0].Name
	}
	fmt.Printf("  %s | Step: %4d | Time: %5.2fs | x: %7.2f\n", name, f.Step, f.Time, centre)
}

func clearScreen() {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", "cls")
	} else {
		cmd = exec.Command("clear")
	}
	cmd.Stdout = os.Stdout
	cmd.Run()
}
