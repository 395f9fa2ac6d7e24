package config

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "canopy.yaml")
	cfg := Default()
	cfg.Dataset.Name = "MAL2010-30x30"
	cfg.Training.Epochs = 25
	cfg.Archive.BaseURL = "http://backend.local"

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Dataset.Name != "MAL2010-30x30" || got.Training.Epochs != 25 {
		t.Fatalf("loaded %+v", got)
	}
	if got.Archive.BaseURL != "http://backend.local" {
		t.Fatalf("archive %+v", got.Archive)
	}
	if len(got.Dataset.Bands) != 4 || got.Dataset.Bands[3] != "N" {
		t.Fatalf("bands %v", got.Dataset.Bands)
	}
}

func TestResolveEnvFillsBlanksOnly(t *testing.T) {
	t.Setenv("EE_ENDPOINT", "http://env-backend")
	t.Setenv("EE_TOKEN", "env-token")
	t.Setenv("TRACK_ENDPOINT", "http://env-track")
	t.Setenv("TRACK_API_KEY", "env-key")

	cfg := Default()
	cfg.Archive.Token = "explicit"
	cfg.ResolveEnv()
	if cfg.Archive.BaseURL != "http://env-backend" {
		t.Fatalf("baseURL %s", cfg.Archive.BaseURL)
	}
	if cfg.Archive.Token != "explicit" {
		t.Fatal("env must not override explicit token")
	}
	if cfg.Tracking.BaseURL != "http://env-track" || cfg.Tracking.APIKey != "env-key" {
		t.Fatalf("tracking %+v", cfg.Tracking)
	}
}

func TestDefaultsMatchArchiveContract(t *testing.T) {
	cfg := Default()
	if cfg.Archive.NAIPCollection != "USDA/NAIP/DOQQ" {
		t.Fatalf("naip collection %s", cfg.Archive.NAIPCollection)
	}
	if cfg.Archive.StudyArea != "CONUS" || cfg.Archive.FastLossCode != 3 {
		t.Fatalf("change-product filter %+v", cfg.Archive)
	}
	if CRS != "EPSG:5070" {
		t.Fatalf("crs %s", CRS)
	}
}

func TestSaveRejectsEmptyPath(t *testing.T) {
	if err := Save("", Default()); err == nil {
		t.Fatal("expected error")
	}
}
