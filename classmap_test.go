package boxtrain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestClassMapping(t *testing.T) {

	c, err := NewClassMapping([]string{"person", "car", "dog"})

	if err != nil {
		t.Fatalf("NewClassMapping failed: %v", err)
	}

	if c.Len() != 3 {
		t.Errorf("Len() = %d; want 3", c.Len())
	}

	if got := c.Name(1); got != "car" {
		t.Errorf("Name(1) = %q; want car", got)
	}

	id, ok := c.ID("dog")

	if !ok || id != 2 {
		t.Errorf("ID(dog) = %d, %v; want 2, true", id, ok)
	}

	if _, ok := c.ID("cat"); ok {
		t.Error("ID(cat) should not be mapped")
	}

	// the padding sentinel reports the background label
	if got := c.Name(PadClassID); got != DefaultBackgroundLabel {
		t.Errorf("Name(PadClassID) = %q; want %q", got, DefaultBackgroundLabel)
	}

	// foreign ids never panic
	if got := c.Name(99); got != "class 99" {
		t.Errorf("Name(99) = %q; want a numbered placeholder", got)
	}
}

func TestClassMappingValidation(t *testing.T) {

	if _, err := NewClassMapping(nil); !errors.Is(err, ErrConfig) {
		t.Errorf("expected config error for an empty list, got %v", err)
	}

	if _, err := NewClassMapping([]string{"a", ""}); !errors.Is(err, ErrConfig) {
		t.Errorf("expected config error for an empty name, got %v", err)
	}

	if _, err := NewClassMapping([]string{"a", "b", "a"}); !errors.Is(err, ErrConfig) {
		t.Errorf("expected config error for a duplicate name, got %v", err)
	}
}

func TestLoadClassFile(t *testing.T) {

	file := filepath.Join(t.TempDir(), "labels.txt")

	content := "person\n\ncar\n  dog  \n"

	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("writing label file failed: %v", err)
	}

	c, err := LoadClassFile(file)

	if err != nil {
		t.Fatalf("LoadClassFile failed: %v", err)
	}

	want := []string{"person", "car", "dog"}
	got := c.Names()

	if len(got) != len(want) {
		t.Fatalf("loaded %d names; want %d", len(got), len(want))
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name %d = %q; want %q", i, got[i], want[i])
		}
	}

	if _, err := LoadClassFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
