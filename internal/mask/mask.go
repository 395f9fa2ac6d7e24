package mask

import (
	"canopy/internal/acquisition"
	"canopy/internal/config"
	"canopy/internal/earthengine"
)

// Scale is the grid resolution of the validity mask, matching the change
// product and the LiDAR labels.
const Scale = 30.0

// Validity builds the deferred no-disturbance mask for an acquisition: a
// pixel is valid iff no slice of the change product within the acquisition
// window classified it as fast loss.
//
// Each in-window slice is mapped to a boolean fast-loss layer, the stack is
// reduced with a per-pixel max (OR), and the result inverted. The reduction
// carries identity 0, so a window with zero qualifying slices yields an
// all-valid mask rather than an empty result.
func Validity(acq acquisition.Acquisition, cfg config.ArchiveConfig) earthengine.Image {
	return earthengine.NewCollection(cfg.LCMSCollection).
		FilterEq("study_area", cfg.StudyArea).
		FilterDate(acq.StartDate, acq.EndDate).
		Select("Change").
		MapEq(float64(cfg.FastLossCode)).
		Max().
		Eq(0).
		Reproject(config.CRS, Scale)
}
