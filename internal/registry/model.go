package registry

import (
	"errors"
	"slices"
)

var ErrNotFound = errors.New("doctor not found")

type Specialty string

const (
	Cardiologia    Specialty = "Cardiologia"
	Dermatologia   Specialty = "Dermatologia"
	Ortopedia      Specialty = "Ortopedia"
	Pediatria      Specialty = "Pediatria"
	Ginecologia    Specialty = "Ginecologia"
	Neurologia     Specialty = "Neurologia"
	Oftalmologia   Specialty = "Oftalmologia"
	ClinicaGeral   Specialty = "Clínica Geral"
	Psiquiatria    Specialty = "Psiquiatria"
	Endocrinologia Specialty = "Endocrinologia"
)

// Specialties is the closed set of specialties a doctor may declare.
var Specialties = []Specialty{
	Cardiologia,
	Dermatologia,
	Ortopedia,
	Pediatria,
	Ginecologia,
	Neurologia,
	Oftalmologia,
	ClinicaGeral,
	Psiquiatria,
	Endocrinologia,
}

// Valid reports whether s belongs to Specialties.
func (s Specialty) Valid() bool {
	return slices.Contains(Specialties, s)
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Doctor is immutable once loaded into a registry. AvailableDates hold ISO
// dates (DateLayout) and AvailableTimes hold times of day (TimeLayout), both
// in ascending order.
type Doctor struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Specialty      Specialty `json:"specialty"`
	City           string    `json:"city"`
	AvailableDates []string  `json:"available_dates"`
	AvailableTimes []string  `json:"available_times"`
}

// HasDate reports whether the doctor declared date as available.
func (d Doctor) HasDate(date string) bool {
	return slices.Contains(d.AvailableDates, date)
}

// HasTime reports whether the doctor declared the time of day as available.
func (d Doctor) HasTime(tm string) bool {
	return slices.Contains(d.AvailableTimes, tm)
}

func (d Doctor) clone() Doctor {
	d.AvailableDates = slices.Clone(d.AvailableDates)
	d.AvailableTimes = slices.Clone(d.AvailableTimes)
	return d
}
