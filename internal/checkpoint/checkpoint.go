package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Checkpoint files are named .checkpoint_{run}_{epoch:04d}.h5 with the epoch
// zero-padded to four digits; discovery parses the ordinal back out of the
// filename. A JSON manifest alongside records the validation loss of each
// saved epoch so restore can pick the numerically best one, not merely the
// most recent.

// Path returns the checkpoint file path for a run and epoch.
func Path(dir, run string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf(".checkpoint_%s_%04d.h5", run, epoch))
}

func manifestPath(dir, run string) string {
	return filepath.Join(dir, fmt.Sprintf(".checkpoint_%s.json", run))
}

type manifest struct {
	// val loss per saved epoch, keyed by the decimal epoch number
	Losses map[string]float64 `json:"losses"`
}

func loadManifest(dir, run string) (manifest, error) {
	m := manifest{Losses: map[string]float64{}}
	b, err := os.ReadFile(manifestPath(dir, run))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, err
	}
	if m.Losses == nil {
		m.Losses = map[string]float64{}
	}
	return m, nil
}

// Save writes the weights for one epoch and records its validation loss.
// Callers only invoke this for strictly-improving epochs.
func Save(dir, run string, epoch int, valLoss float64, weights []float32) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b := make([]byte, 4*len(weights))
	for i, w := range weights {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(w))
	}
	if err := os.WriteFile(Path(dir, run, epoch), b, 0o644); err != nil {
		return err
	}
	m, err := loadManifest(dir, run)
	if err != nil {
		return err
	}
	m.Losses[strconv.Itoa(epoch)] = valLoss
	mb, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(manifestPath(dir, run), mb, 0o644)
}

// LoadWeights reads the weights saved for an epoch.
func LoadWeights(dir, run string, epoch int) ([]float32, error) {
	b, err := os.ReadFile(Path(dir, run, epoch))
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("checkpoint: truncated weights file for epoch %d", epoch)
	}
	w := make([]float32, len(b)/4)
	for i := range w {
		w[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return w, nil
}

// ParseEpoch extracts the epoch ordinal from a checkpoint filename for the
// given run, reporting false for files that don't match the scheme. The
// epoch field is zero-padded to at least four digits; longer fields are
// accepted so epochs past 9999 round-trip through Save.
func ParseEpoch(name, run string) (int, bool) {
	prefix := fmt.Sprintf(".checkpoint_%s_", run)
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".h5") {
		return 0, false
	}
	num := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".h5")
	if len(num) < 4 {
		return 0, false
	}
	epoch, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	return epoch, true
}

// SavedEpochs lists the epochs with a checkpoint on disk, ascending.
func SavedEpochs(dir, run string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var epochs []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if epoch, ok := ParseEpoch(e.Name(), run); ok {
			epochs = append(epochs, epoch)
		}
	}
	sort.Ints(epochs)
	return epochs, nil
}

// BestEpoch returns the saved epoch with the lowest recorded validation
// loss. A checkpoint without a recorded loss is an error: restoring an
// arbitrary epoch silently would defeat best-model selection.
func BestEpoch(dir, run string) (int, float64, error) {
	epochs, err := SavedEpochs(dir, run)
	if err != nil {
		return 0, 0, err
	}
	if len(epochs) == 0 {
		return 0, 0, fmt.Errorf("checkpoint: no checkpoints for run %s in %s", run, dir)
	}
	m, err := loadManifest(dir, run)
	if err != nil {
		return 0, 0, err
	}
	best := -1
	bestLoss := math.Inf(1)
	for _, epoch := range epochs {
		loss, ok := m.Losses[strconv.Itoa(epoch)]
		if !ok {
			return 0, 0, fmt.Errorf("checkpoint: epoch %d has no recorded val loss", epoch)
		}
		if loss < bestLoss {
			bestLoss = loss
			best = epoch
		}
	}
	return best, bestLoss, nil
}
