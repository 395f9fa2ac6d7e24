package checkpoint

import (
	"path/filepath"
	"testing"
)

func TestPathZeroPadsEpoch(t *testing.T) {
	got := Path("models", "ds-cover-RGB", 7)
	want := filepath.Join("models", ".checkpoint_ds-cover-RGB_0007.h5")
	if got != want {
		t.Fatalf("path %s, want %s", got, want)
	}
}

func TestParseEpoch(t *testing.T) {
	cases := []struct {
		name string
		want int
		ok   bool
	}{
		{".checkpoint_run_0012.h5", 12, true},
		{".checkpoint_run_0100.h5", 100, true},
		{".checkpoint_run_10000.h5", 10000, true},
		{".checkpoint_other_0012.h5", 0, false},
		{".checkpoint_run_12.h5", 0, false},
		{".checkpoint_run_0012.weights", 0, false},
		{"notes.txt", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseEpoch(c.name, "run")
		if ok != c.ok || got != c.want {
			t.Fatalf("ParseEpoch(%q) = %d, %v", c.name, got, ok)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := []float32{0.5, -1.25, 3}
	if err := Save(dir, "run", 3, 0.42, w); err != nil {
		t.Fatal(err)
	}
	got, err := LoadWeights(dir, "run", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(w) {
		t.Fatalf("weights %v", got)
	}
	for i := range w {
		if got[i] != w[i] {
			t.Fatalf("weights %v, want %v", got, w)
		}
	}
}

func TestBestEpochPicksLowestLossNotLatest(t *testing.T) {
	dir := t.TempDir()
	w := []float32{1}
	if err := Save(dir, "run", 1, 0.9, w); err != nil {
		t.Fatal(err)
	}
	if err := Save(dir, "run", 4, 0.3, w); err != nil {
		t.Fatal(err)
	}
	if err := Save(dir, "run", 9, 0.5, w); err != nil {
		t.Fatal(err)
	}
	epoch, loss, err := BestEpoch(dir, "run")
	if err != nil {
		t.Fatal(err)
	}
	if epoch != 4 || loss != 0.3 {
		t.Fatalf("best epoch %d loss %v", epoch, loss)
	}
}

func TestBestEpochIgnoresOtherRuns(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, "a", 1, 0.5, []float32{1}); err != nil {
		t.Fatal(err)
	}
	if err := Save(dir, "b", 2, 0.1, []float32{1}); err != nil {
		t.Fatal(err)
	}
	epoch, loss, err := BestEpoch(dir, "a")
	if err != nil {
		t.Fatal(err)
	}
	if epoch != 1 || loss != 0.5 {
		t.Fatalf("best epoch %d loss %v", epoch, loss)
	}
}

func TestBestEpochErrorsWithoutCheckpoints(t *testing.T) {
	if _, _, err := BestEpoch(t.TempDir(), "run"); err == nil {
		t.Fatal("expected no-checkpoints error")
	}
}

func TestSavedEpochsAscending(t *testing.T) {
	dir := t.TempDir()
	for _, e := range []int{12, 3, 7} {
		if err := Save(dir, "run", e, 0.1, []float32{1}); err != nil {
			t.Fatal(err)
		}
	}
	epochs, err := SavedEpochs(dir, "run")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{3, 7, 12}
	if len(epochs) != 3 {
		t.Fatalf("epochs %v", epochs)
	}
	for i := range want {
		if epochs[i] != want[i] {
			t.Fatalf("epochs %v, want %v", epochs, want)
		}
	}
}
