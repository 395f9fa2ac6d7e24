package acquisition

import (
	"strings"
	"testing"
)

func TestNewEnforcesDateOrdering(t *testing.T) {
	if _, err := New("MAL2099", "2020-12-31", "2020-01-01"); err == nil {
		t.Fatal("expected error for end before start")
	}
	a, err := New("MAL2099", "2020-01-01", "2020-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if !a.StartDate.Equal(a.EndDate) {
		t.Fatalf("single-day window mangled: %v %v", a.StartDate, a.EndDate)
	}
}

func TestNewRejectsMalformedDates(t *testing.T) {
	if _, err := New("X", "2020-13-01", "2020-12-31"); err == nil {
		t.Fatal("expected error for bad start date")
	}
	if _, err := New("X", "2020-01-01", "not-a-date"); err == nil {
		t.Fatal("expected error for bad end date")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	a, _ := New("MAL2010", "2010-01-01", "2011-12-31")
	b, _ := New("MAL2010", "2010-01-01", "2010-12-31")
	if _, err := NewRegistry(a, b); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	if reg.Len() != 12 {
		t.Fatalf("expected 12 acquisitions, got %d", reg.Len())
	}
	a, ok := reg.Get("MAL2016_CanyonCreek")
	if !ok {
		t.Fatal("missing MAL2016_CanyonCreek")
	}
	if got := a.StartDate.Format("2006-01-02"); got != "2016-01-01" {
		t.Fatalf("wrong start date %s", got)
	}
	if _, ok := reg.Get("MAL1999"); ok {
		t.Fatal("unexpected lookup hit")
	}
	names := reg.Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

func TestAssetID(t *testing.T) {
	a, _ := New("MAL2014", "2014-01-01", "2014-12-31")
	id := a.AssetID("projects/ee-maptheforests/assets/malheur_lidar/")
	if !strings.HasSuffix(id, "/MAL2014") {
		t.Fatalf("unexpected asset id %s", id)
	}
}
