package gridnet

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/boxtrain/boxtrain"
)

// trainedNet returns a compiled model nudged away from its initialization
func trainedNet(t *testing.T, seed int64) (*Net, *boxtrain.DenseBatch) {
	t.Helper()

	n, err := New(Config{Width: 32, Height: 32, GridSize: 4, Classes: 2, Seed: seed})

	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := n.Compile(boxtrain.CompileConfig{Momentum: 0.9, ClipGlobalNorm: 10}); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	dense := denseScene(t, 32, 90,
		[]boxtrain.Box{{X: 8, Y: 8, W: 10, H: 10}}, []int32{1})

	for i := 0; i < 10; i++ {
		if _, err := n.TrainStep(dense, 0.2); err != nil {
			t.Fatalf("TrainStep failed: %v", err)
		}
	}

	return n, dense
}

// rawEqual compares two prediction sets exactly
func rawEqual(a, b []boxtrain.RawOutput) bool {

	if len(a) != len(b) {
		return false
	}

	for i := range a {

		if a[i].Candidates != b[i].Candidates || a[i].Classes != b[i].Classes {
			return false
		}

		for k := range a[i].Boxes {
			if a[i].Boxes[k] != b[i].Boxes[k] {
				return false
			}
		}

		for k := range a[i].Scores {
			if a[i].Scores[k] != b[i].Scores[k] {
				return false
			}
		}
	}

	return true
}

func TestWeightsRoundTrip(t *testing.T) {

	dir := t.TempDir()

	src, dense := trainedNet(t, 3)
	defer dense.Close()

	if err := src.SaveWeights(dir); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	// restoring into a model with different initial weights
	dst, err := New(Config{Width: 32, Height: 32, GridSize: 4, Classes: 2, Seed: 99})

	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := dst.LoadWeights(dir); err != nil {
		t.Fatalf("LoadWeights failed: %v", err)
	}

	// saving the restored model reproduces the weight file bit for bit
	dir2 := t.TempDir()

	if err := dst.SaveWeights(dir2); err != nil {
		t.Fatalf("SaveWeights of restored model failed: %v", err)
	}

	orig, err := os.ReadFile(filepath.Join(dir, "weights.bin"))

	if err != nil {
		t.Fatalf("reading original weights: %v", err)
	}

	restored, err := os.ReadFile(filepath.Join(dir2, "weights.bin"))

	if err != nil {
		t.Fatalf("reading restored weights: %v", err)
	}

	if !bytes.Equal(orig, restored) {
		t.Error("weights changed across a save/load/save cycle")
	}
}

func TestWeightsF16Fallback(t *testing.T) {

	dir := t.TempDir()

	src, dense := trainedNet(t, 3)
	defer dense.Close()

	if err := src.SaveWeights(dir); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "weights.bin")); err != nil {
		t.Fatalf("removing float32 weights: %v", err)
	}

	dst, err := New(Config{Width: 32, Height: 32, GridSize: 4, Classes: 2, Seed: 99})

	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := dst.LoadWeights(dir); err != nil {
		t.Fatalf("LoadWeights from the half precision file failed: %v", err)
	}

	want, err := src.Predict(dense)

	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	got, err := dst.Predict(dense)

	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	// half precision loses low bits, predictions stay close
	for i := range want {
		for k := range want[i].Scores {

			diff := want[i].Scores[k] - got[i].Scores[k]

			if diff < -0.01 || diff > 0.01 {
				t.Fatalf("score %d drifted from %f to %f through half precision",
					k, want[i].Scores[k], got[i].Scores[k])
			}
		}
	}
}

func TestLoadWeightsGeometryMismatch(t *testing.T) {

	dir := t.TempDir()

	src, dense := trainedNet(t, 3)
	defer dense.Close()

	if err := src.SaveWeights(dir); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	other, err := New(Config{Width: 32, Height: 32, GridSize: 4, Classes: 5})

	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := other.LoadWeights(dir); !errors.Is(err, boxtrain.ErrCheckpoint) {
		t.Fatalf("LoadWeights error = %v; want a checkpoint error", err)
	}
}

func TestOpenCheckpoint(t *testing.T) {

	dir := t.TempDir()

	src, dense := trainedNet(t, 3)
	defer dense.Close()

	if err := src.SaveWeights(dir); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	n, err := Open(dir)

	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if w, h := n.InputSize(); w != 32 || h != 32 {
		t.Errorf("InputSize = %dx%d; want 32x32", w, h)
	}

	if cfg := n.Config(); cfg.GridSize != 4 || cfg.Classes != 2 {
		t.Errorf("Config = %+v; want grid 4 with 2 classes", cfg)
	}

	// a reference model loaded explicitly must agree exactly
	ref, err := New(Config{Width: 32, Height: 32, GridSize: 4, Classes: 2, Seed: 99})

	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := ref.LoadWeights(dir); err != nil {
		t.Fatalf("LoadWeights failed: %v", err)
	}

	got, err := n.Predict(dense)

	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	want, err := ref.Predict(dense)

	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if !rawEqual(got, want) {
		t.Error("opened model predicts differently from an explicit load")
	}
}

func TestOpenMissingCheckpoint(t *testing.T) {

	if _, err := Open(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, boxtrain.ErrCheckpoint) {
		t.Fatalf("Open error = %v; want a checkpoint error", err)
	}

	// a header without weights is also a checkpoint error
	dir := t.TempDir()

	src, dense := trainedNet(t, 3)
	defer dense.Close()

	if err := src.SaveWeights(dir); err != nil {
		t.Fatalf("SaveWeights failed: %v", err)
	}

	for _, f := range []string{"weights.bin", "weights.f16"} {
		if err := os.Remove(filepath.Join(dir, f)); err != nil {
			t.Fatalf("removing %s: %v", f, err)
		}
	}

	if _, err := Open(dir); !errors.Is(err, boxtrain.ErrCheckpoint) {
		t.Fatalf("Open without weights = %v; want a checkpoint error", err)
	}
}
