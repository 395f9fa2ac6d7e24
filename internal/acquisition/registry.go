package acquisition

// defaultEntries lists the Malheur LiDAR surveys and their NAIP windows.
// NAIP years over the forest: 2004 (RGB), 2005 (RGB), 2009, 2011, 2012,
// 2014, 2016, 2020, 2022.
var defaultEntries = []struct {
	name  string
	start string
	end   string
}{
	{"MAL2007", "2007-01-01", "2009-12-31"},
	{"MAL2008_CampCreek", "2008-01-01", "2009-12-31"},
	{"MAL2008_2009_MalheurRiver", "2008-01-01", "2009-12-31"},
	{"MAL2010", "2010-01-01", "2011-12-31"},
	{"MAL2014", "2014-01-01", "2014-12-31"},
	{"MAL2016_CanyonCreek", "2016-01-01", "2016-12-31"},
	{"MAL2017_Crow", "2016-01-01", "2017-12-31"},
	{"MAL2017_JohnDay", "2016-01-01", "2017-12-31"},
	{"MAL2018_Aldrich_UpperBear", "2018-01-01", "2020-12-31"},
	{"MAL2018_Rattlesnake", "2018-01-01", "2020-12-31"},
	{"MAL2019", "2019-01-01", "2020-12-31"},
	{"MAL2020_UpperJohnDay", "2020-01-01", "2020-12-31"},
}

// DefaultRegistry builds the static registry of known surveys. The table is
// hand-maintained, so construction failures are programmer errors and panic.
func DefaultRegistry() *Registry {
	acqs := make([]Acquisition, 0, len(defaultEntries))
	for _, e := range defaultEntries {
		a, err := New(e.name, e.start, e.end)
		if err != nil {
			panic(err)
		}
		acqs = append(acqs, a)
	}
	r, err := NewRegistry(acqs...)
	if err != nil {
		panic(err)
	}
	return r
}
