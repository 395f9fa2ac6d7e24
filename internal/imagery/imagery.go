package imagery

import (
	"fmt"
	"math"

	"canopy/internal/acquisition"
	"canopy/internal/config"
	"canopy/internal/earthengine"
	"canopy/internal/mask"
)

const (
	// InputScale is the NAIP input resolution in projected units.
	InputScale = 1.0
	// LabelScale is the LiDAR label resolution. The two grids align so one
	// label pixel covers exactly a 30x30 block of input pixels.
	LabelScale = mask.Scale
)

// Footprint is the survey's geographic boundary, fetched from the archive by
// name.
func Footprint(acq acquisition.Acquisition, cfg config.ArchiveConfig) earthengine.Geometry {
	return earthengine.NewImage(acq.AssetID(cfg.AssetPrefix)).Geometry()
}

// InputLayer builds the deferred NAIP input for an acquisition: in-window
// captures intersecting the survey footprint, mosaicked (later captures win
// on overlap), masked to undisturbed pixels, and reprojected to 1 m.
func InputLayer(acq acquisition.Acquisition, cfg config.ArchiveConfig) earthengine.Image {
	return earthengine.NewCollection(cfg.NAIPCollection).
		FilterDate(acq.StartDate, acq.EndDate).
		FilterBounds(Footprint(acq, cfg).Bounds()).
		Mosaic().
		UpdateMask(mask.Validity(acq, cfg)).
		Reproject(config.CRS, InputScale)
}

// LabelLayer builds the deferred LiDAR label raster for an acquisition,
// masked with the same validity mask as the input and reprojected to 30 m.
func LabelLayer(acq acquisition.Acquisition, cfg config.ArchiveConfig) earthengine.Image {
	return earthengine.NewImage(acq.AssetID(cfg.AssetPrefix)).
		UpdateMask(mask.Validity(acq, cfg)).
		Reproject(config.CRS, LabelScale)
}

// CheckAlignment verifies that evaluated input and label rasters share a
// coordinate reference and footprint and differ in resolution by exactly the
// input:label scale ratio, so downstream tiling can map each label pixel to
// its 30x30 input block deterministically.
func CheckAlignment(input, label *earthengine.Raster) error {
	if input.CRS != label.CRS {
		return fmt.Errorf("alignment: CRS mismatch: input %s, label %s", input.CRS, label.CRS)
	}
	if input.Extent != label.Extent {
		return fmt.Errorf("alignment: footprint mismatch: input %+v, label %+v", input.Extent, label.Extent)
	}
	wantRatio := LabelScale / InputScale
	gotRatio := label.Scale / input.Scale
	if math.Abs(gotRatio-wantRatio) > 1e-9 {
		return fmt.Errorf("alignment: scale ratio %g, want %g", gotRatio, wantRatio)
	}
	if input.Width != label.Width*int(wantRatio) || input.Height != label.Height*int(wantRatio) {
		return fmt.Errorf("alignment: grid %dx%d does not tile %dx%d labels at ratio %d",
			input.Width, input.Height, label.Width, label.Height, int(wantRatio))
	}
	return nil
}
