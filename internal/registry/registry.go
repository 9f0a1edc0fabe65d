// Package registry holds the doctor roster and answers availability lookups.
package registry

import (
	"fmt"
	"slices"
	"sort"

	"github.com/hackgods/clinic-booking-agent/internal/textmatch"
)

// Registry is the read-only doctor catalog consulted by the ledger and the
// conversational agent.
type Registry interface {
	FindDoctors(specialty, city string) []Doctor
	FindDoctorsByCity(city string) []Doctor
	GetDoctor(id string) (*Doctor, error)
	ListSpecialties() []string
	ListCities() []string
}

// MemoryRegistry is an immutable in-memory roster. It needs no locking: the
// roster is fixed at construction and every accessor returns copies.
type MemoryRegistry struct {
	doctors []Doctor
	byID    map[string]int
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry builds a registry from the given doctors. Duplicate ids
// are rejected; roster order is kept as the tie-break order for searches.
func NewMemoryRegistry(doctors []Doctor) (*MemoryRegistry, error) {
	r := &MemoryRegistry{
		doctors: make([]Doctor, 0, len(doctors)),
		byID:    make(map[string]int, len(doctors)),
	}
	for _, d := range doctors {
		if d.ID == "" {
			return nil, fmt.Errorf("registry: doctor %q has no id", d.Name)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate doctor id %q", d.ID)
		}
		c := d.clone()
		sort.Strings(c.AvailableDates)
		sort.Strings(c.AvailableTimes)
		r.byID[d.ID] = len(r.doctors)
		r.doctors = append(r.doctors, c)
	}
	return r, nil
}

// FindDoctors returns doctors whose specialty contains specialty and, when city
// is not empty, whose city contains city. Matching ignores case and accents.
// Exact matches come before partial ones; ties keep roster order.
func (r *MemoryRegistry) FindDoctors(specialty, city string) []Doctor {
	type ranked struct {
		doc  Doctor
		rank int
	}
	var hits []ranked
	for _, d := range r.doctors {
		if !textmatch.Contains(string(d.Specialty), specialty) {
			continue
		}
		if city != "" && !textmatch.Contains(d.City, city) {
			continue
		}
		rank := 0
		if specialty != "" && !textmatch.Equal(string(d.Specialty), specialty) {
			rank++
		}
		if city != "" && !textmatch.Equal(d.City, city) {
			rank++
		}
		hits = append(hits, ranked{doc: d.clone(), rank: rank})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })

	out := make([]Doctor, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.doc)
	}
	return out
}

// FindDoctorsByCity returns every doctor practicing in a matching city.
func (r *MemoryRegistry) FindDoctorsByCity(city string) []Doctor {
	return r.FindDoctors("", city)
}

func (r *MemoryRegistry) GetDoctor(id string) (*Doctor, error) {
	i, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	d := r.doctors[i].clone()
	return &d, nil
}

// ListSpecialties returns the distinct specialties present in the roster,
// sorted.
func (r *MemoryRegistry) ListSpecialties() []string {
	set := make(map[string]struct{})
	for _, d := range r.doctors {
		set[string(d.Specialty)] = struct{}{}
	}
	return sortedKeys(set)
}

// ListCities returns the distinct cities present in the roster, sorted.
func (r *MemoryRegistry) ListCities() []string {
	set := make(map[string]struct{})
	for _, d := range r.doctors {
		set[d.City] = struct{}{}
	}
	return sortedKeys(set)
}

// Doctors returns a copy of the full roster in roster order.
func (r *MemoryRegistry) Doctors() []Doctor {
	out := make([]Doctor, 0, len(r.doctors))
	for _, d := range r.doctors {
		out = append(out, d.clone())
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
