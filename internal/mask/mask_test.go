package mask

import (
	"testing"

	"canopy/internal/acquisition"
	"canopy/internal/config"
	"canopy/internal/earthengine"
)

// changeSlice is one dated layer of the fake change product used by the
// test interpreter below.
type changeSlice struct {
	date   string
	change []float64
}

// value is the interpreter's intermediate: a dated stack of layers while in
// collection state, a single layer after reduction.
type value struct {
	stack []changeSlice
	img   []float64
}

// interpret executes the mask expression against fake change slices,
// implementing the backend contract the builder relies on, including the
// empty-reduction identity.
func interpret(t *testing.T, e *earthengine.Expr, slices []changeSlice, pixels int) []float64 {
	t.Helper()
	var eval func(e *earthengine.Expr) value
	eval = func(e *earthengine.Expr) value {
		switch e.Op {
		case "collection":
			return value{stack: slices}
		case "filterEq":
			if e.Args["property"] != "study_area" {
				t.Fatalf("unexpected filterEq on %v", e.Args["property"])
			}
			return eval(e.Inputs[0])
		case "filterDate":
			v := eval(e.Inputs[0])
			start, end := e.Args["start"].(string), e.Args["end"].(string)
			var kept []changeSlice
			for _, s := range v.stack {
				if s.date >= start && s.date <= end {
					kept = append(kept, s)
				}
			}
			return value{stack: kept}
		case "select":
			return eval(e.Inputs[0])
		case "mapEq":
			v := eval(e.Inputs[0])
			code := e.Args["value"].(float64)
			out := make([]changeSlice, len(v.stack))
			for i, s := range v.stack {
				m := make([]float64, len(s.change))
				for j, px := range s.change {
					if px == code {
						m[j] = 1
					}
				}
				out[i] = changeSlice{date: s.date, change: m}
			}
			return value{stack: out}
		case "max":
			v := eval(e.Inputs[0])
			// identity 0 for the empty stack
			out := make([]float64, pixels)
			for _, s := range v.stack {
				for j, px := range s.change {
					if px > out[j] {
						out[j] = px
					}
				}
			}
			return value{img: out}
		case "eq":
			v := eval(e.Inputs[0])
			want := e.Args["value"].(float64)
			out := make([]float64, len(v.img))
			for j, px := range v.img {
				if px == want {
					out[j] = 1
				}
			}
			return value{img: out}
		case "reproject":
			return eval(e.Inputs[0])
		default:
			t.Fatalf("unexpected op %s", e.Op)
			return value{}
		}
	}
	return eval(e).img
}

func mustAcq(t *testing.T, name, start, end string) acquisition.Acquisition {
	t.Helper()
	a, err := acquisition.New(name, start, end)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func archiveCfg() config.ArchiveConfig {
	return config.Default().Archive
}

func TestValidityExpressionStructure(t *testing.T) {
	acq := mustAcq(t, "MAL2016_CanyonCreek", "2016-01-01", "2016-12-31")
	m := Validity(acq, archiveCfg())
	root := m.Expr()
	if root.Op != "reproject" {
		t.Fatalf("root op %s", root.Op)
	}
	if root.Args["scale"] != 30.0 || root.Args["crs"] != config.CRS {
		t.Fatalf("reproject args %v", root.Args)
	}
	if fd := root.Find("filterDate"); fd == nil || fd.Args["start"] != "2016-01-01" || fd.Args["end"] != "2016-12-31" {
		t.Fatalf("filterDate missing or wrong: %+v", root.Find("filterDate"))
	}
	if me := root.Find("mapEq"); me == nil || me.Args["value"] != 3.0 {
		t.Fatalf("fast-loss predicate missing: %+v", root.Find("mapEq"))
	}
	if eq := root.Find("eq"); eq == nil || eq.Args["value"] != 0.0 {
		t.Fatalf("inversion missing: %+v", root.Find("eq"))
	}
	if sel := root.Find("select"); sel == nil || sel.Args["band"] != "Change" {
		t.Fatalf("band select missing: %+v", root.Find("select"))
	}
}

func TestEmptyWindowYieldsAllValid(t *testing.T) {
	// A single-day window with zero qualifying change slices must reduce to
	// an all-valid mask: max over the empty stack is the OR identity.
	acq := mustAcq(t, "MAL2014", "2014-06-01", "2014-06-01")
	slices := []changeSlice{
		{date: "2010-01-01", change: []float64{3, 0, 0, 0}},
		{date: "2020-01-01", change: []float64{0, 3, 0, 0}},
	}
	got := interpret(t, Validity(acq, archiveCfg()).Expr(), slices, 4)
	for i, px := range got {
		if px != 1 {
			t.Fatalf("pixel %d = %v, want all-valid", i, px)
		}
	}
}

func TestFastLossInWindowInvalidatesPixel(t *testing.T) {
	acq := mustAcq(t, "MAL2010", "2010-01-01", "2011-12-31")
	slices := []changeSlice{
		{date: "2010-06-01", change: []float64{3, 0, 2, 0}}, // fast loss at pixel 0
		{date: "2011-06-01", change: []float64{0, 0, 3, 1}}, // fast loss at pixel 2
		{date: "2019-06-01", change: []float64{3, 3, 3, 3}}, // out of window
	}
	got := interpret(t, Validity(acq, archiveCfg()).Expr(), slices, 4)
	want := []float64{0, 1, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mask %v, want %v", got, want)
		}
	}
}

func TestWindowBoundsAreInclusive(t *testing.T) {
	acq := mustAcq(t, "MAL2014", "2014-01-01", "2014-12-31")
	slices := []changeSlice{
		{date: "2014-12-31", change: []float64{3}},
	}
	got := interpret(t, Validity(acq, archiveCfg()).Expr(), slices, 1)
	if got[0] != 0 {
		t.Fatal("end date should be inclusive")
	}
}
