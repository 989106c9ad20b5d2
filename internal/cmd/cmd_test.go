package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-digitaltwin/cabintwin/dataset"
	"github.com/go-digitaltwin/cabintwin/fea"
	"github.com/go-digitaltwin/cabintwin/history"
)

// run executes the command line against dir and returns what it printed.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out, logs bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(append([]string{"--data-dir", dir}, args...))
	err := root.ExecuteContext(context.Background())
	t.Logf("cabintwin %s\n%s", strings.Join(args, " "), logs.String())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("CABINTWIN_FEA_DELAY", "0s")
	t.Setenv("CABINTWIN_NEO4J_URI", "")
	t.Setenv("CABINTWIN_OTEL_ENDPOINT", "")
	t.Setenv("CABINTWIN_HISTORY_PATH", "")
	return t.TempDir()
}

func TestPipeline(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, dir, "generate", "--samples", "600")
	if err != nil {
		t.Fatalf("generate error = %v", err)
	}
	if !strings.Contains(out, "Generated 600 readings") {
		t.Errorf("generate printed %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, dataset.ReadingsKey)); err != nil {
		t.Errorf("generate did not write the dataset: %v", err)
	}

	out, err = run(t, dir, "life", "--tail", "3")
	if err != nil {
		t.Fatalf("life error = %v", err)
	}
	if !strings.Contains(out, "life_remaining_percent") {
		t.Errorf("life printed no table: %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, dataset.LifeKey)); err != nil {
		t.Errorf("life did not write the estimate: %v", err)
	}

	out, err = run(t, dir, "detect", "--limit", "5")
	if err != nil {
		t.Fatalf("detect error = %v", err)
	}
	if !strings.Contains(out, "anomalies in 600 readings") {
		t.Errorf("detect printed %q", out)
	}

	out, err = run(t, dir, "fea")
	if err != nil {
		t.Fatalf("fea error = %v", err)
	}
	var printed fea.Output
	if err := json.Unmarshal([]byte(out), &printed); err != nil {
		t.Fatalf("fea printed %q: %v", out, err)
	}
	if printed.SafetyFactor <= 0 {
		t.Errorf("fea printed a safety factor of %v", printed.SafetyFactor)
	}
	if _, err := os.Stat(filepath.Join(dir, "fea", "output_fea.json")); err != nil {
		t.Errorf("fea did not write its output: %v", err)
	}

	out, err = run(t, dir, "replay")
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if !strings.Contains(out, "Readings:        600") {
		t.Errorf("replay printed %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "history.db")); err != nil {
		t.Errorf("no history database: %v", err)
	}
}

func TestMissingDataset(t *testing.T) {
	dir := isolate(t)
	for _, cmd := range []string{"life", "detect", "fea", "replay", "serve"} {
		t.Run(cmd, func(t *testing.T) {
			_, err := run(t, dir, cmd)
			if !errors.Is(err, dataset.ErrNotFound) {
				t.Fatalf("%s error = %v, want %v", cmd, err, dataset.ErrNotFound)
			}
			if !strings.Contains(err.Error(), "cabintwin generate") {
				t.Errorf("%s error %q does not tell how to produce the dataset", cmd, err)
			}
		})
	}
}

func TestInvalidConfiguration(t *testing.T) {
	dir := isolate(t)
	t.Setenv("CABINTWIN_LIFE_TOTAL_UNITS", "0")
	if _, err := run(t, dir, "generate"); err == nil {
		t.Error("generate with zero total life succeeded, want error")
	}
}

func TestVersion(t *testing.T) {
	// version needs no valid configuration
	t.Setenv("CABINTWIN_LIFE_TOTAL_UNITS", "0")
	out, err := run(t, t.TempDir(), "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if out != "cabintwin version test\n" {
		t.Errorf("version printed %q", out)
	}
}

func TestLifeTail(t *testing.T) {
	dir := isolate(t)
	if _, err := run(t, dir, "generate", "--samples", "50"); err != nil {
		t.Fatalf("generate error = %v", err)
	}

	if _, err := run(t, dir, "life", "--tail", "-1"); err == nil {
		t.Error("life --tail -1 succeeded, want error")
	}

	out, err := run(t, dir, "life", "--tail", "0")
	if err != nil {
		t.Fatalf("life --tail 0 error = %v", err)
	}
	if strings.Contains(out, "Last") {
		t.Errorf("life --tail 0 printed entries: %q", out)
	}

	out, err = run(t, dir, "life", "--tail", "80")
	if err != nil {
		t.Fatalf("life --tail 80 error = %v", err)
	}
	if !strings.Contains(out, "Last 50 entries") {
		t.Errorf("life --tail 80 printed %q, want all 50 entries", out)
	}
}

func TestFEARecordsSolvedLoadCase(t *testing.T) {
	dir := isolate(t)
	if err := os.MkdirAll(filepath.Join(dir, "fea"), 0o755); err != nil {
		t.Fatal(err)
	}
	input := []byte(`{"avg_temp_C": 31, "max_vibration_g": 2.5}`)
	if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(fea.InputKey)), input, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, dir, "fea", "--from-dataset=false"); err != nil {
		t.Fatalf("fea error = %v", err)
	}

	ctx := context.Background()
	h, err := history.Open(ctx, filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	defer h.Close()
	runs, err := h.ListFEARuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListFEARuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("history has %d runs, want 1", len(runs))
	}
	want := fea.Input{AvgTempC: 31, MaxVibrationG: 2.5}
	if runs[0].Input != want {
		t.Errorf("recorded load case = %+v, want %+v", runs[0].Input, want)
	}
	if runs[0].Output.MaxStressVonMisesMPa != fea.Solve(want, runs[0].Output.Timestamp).MaxStressVonMisesMPa {
		t.Errorf("recorded output %+v does not solve %+v", runs[0].Output, want)
	}
}
