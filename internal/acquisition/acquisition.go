package acquisition

import (
	"fmt"
	"sort"
	"time"
)

// Acquisition identifies a LiDAR survey and the date window over which its
// labels are considered valid. The name doubles as the key into the remote
// imagery archive; identity is by name. Values are immutable after
// construction and carry no derived state: masks and layers are built on
// demand from the name and dates.
type Acquisition struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// New constructs an Acquisition, enforcing the date-ordering invariant.
// Start and end are inclusive calendar dates in "2006-01-02" form. No other
// validation happens here: an unknown name simply fails later when the
// archive lookup is evaluated.
func New(name, startDate, endDate string) (Acquisition, error) {
	start, err := time.Parse(time.DateOnly, startDate)
	if err != nil {
		return Acquisition{}, fmt.Errorf("acquisition %s: bad start date: %w", name, err)
	}
	end, err := time.Parse(time.DateOnly, endDate)
	if err != nil {
		return Acquisition{}, fmt.Errorf("acquisition %s: bad end date: %w", name, err)
	}
	if end.Before(start) {
		return Acquisition{}, fmt.Errorf("acquisition %s: end date %s before start date %s", name, endDate, startDate)
	}
	return Acquisition{Name: name, StartDate: start, EndDate: end}, nil
}

// AssetID returns the archive asset path for this survey's LiDAR raster.
func (a Acquisition) AssetID(prefix string) string {
	return prefix + a.Name
}

// Registry is an immutable table of known acquisitions, built once at
// startup and read-only afterward.
type Registry struct {
	byName map[string]Acquisition
	names  []string
}

// NewRegistry builds a registry from acquisition values. Duplicate names are
// rejected: two acquisitions with the same name would be the same entity.
func NewRegistry(acqs ...Acquisition) (*Registry, error) {
	r := &Registry{byName: make(map[string]Acquisition, len(acqs))}
	for _, a := range acqs {
		if _, ok := r.byName[a.Name]; ok {
			return nil, fmt.Errorf("duplicate acquisition name %s", a.Name)
		}
		r.byName[a.Name] = a
		r.names = append(r.names, a.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get looks up an acquisition by name.
func (r *Registry) Get(name string) (Acquisition, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Names returns the sorted acquisition names.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every acquisition in name order.
func (r *Registry) All() []Acquisition {
	out := make([]Acquisition, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

// Len returns the number of registered acquisitions.
func (r *Registry) Len() int { return len(r.names) }
