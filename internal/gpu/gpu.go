package gpu

import (
	"os"
	"os/exec"
)

// Available reports whether a CUDA-capable GPU is visible to the process.
// CANOPY_FORCE_GPU=1 overrides detection, mainly for tests and containers
// where the driver files are hidden.
func Available() bool {
	if os.Getenv("CANOPY_FORCE_GPU") == "1" {
		return true
	}
	if _, err := os.Stat("/proc/driver/nvidia/version"); err == nil {
		return true
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}
	return false
}
