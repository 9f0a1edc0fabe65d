package registry

import "time"

// DefaultTimes are the consultation hours offered by the seeded roster.
var DefaultTimes = []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00"}

// UpcomingWeekdays returns the next n weekdays after today, formatted with
// DateLayout. today itself is not included.
func UpcomingWeekdays(today time.Time, n int) []string {
	dates := make([]string, 0, n)
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	for len(dates) < n {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		dates = append(dates, day.Format(DateLayout))
	}
	return dates
}

// DefaultRoster is the demo roster used when no database is configured.
// Availability is generated relative to today so the seeded dates always fall
// inside the booking window.
func DefaultRoster(today time.Time) []Doctor {
	dates := UpcomingWeekdays(today, 10)
	morning := DefaultTimes[:3]
	afternoon := DefaultTimes[3:]

	doc := func(id, name string, s Specialty, city string, times []string) Doctor {
		return Doctor{
			ID:             id,
			Name:           name,
			Specialty:      s,
			City:           city,
			AvailableDates: dates,
			AvailableTimes: times,
		}
	}

	return []Doctor{
		doc("doc-001", "Dr. Carlos Mendes", Cardiologia, "São Paulo", DefaultTimes),
		doc("doc-002", "Dra. Ana Beatriz Souza", Cardiologia, "Rio de Janeiro", morning),
		doc("doc-003", "Dra. Fernanda Lima", Dermatologia, "São Paulo", afternoon),
		doc("doc-004", "Dr. Ricardo Alves", Ortopedia, "Belo Horizonte", DefaultTimes),
		doc("doc-005", "Dra. Juliana Costa", Pediatria, "São Paulo", morning),
		doc("doc-006", "Dra. Patrícia Rocha", Ginecologia, "Curitiba", DefaultTimes),
		doc("doc-007", "Dr. Marcelo Santos", Neurologia, "Porto Alegre", afternoon),
		doc("doc-008", "Dr. Paulo Henrique Dias", Oftalmologia, "Rio de Janeiro", DefaultTimes),
		doc("doc-009", "Dra. Camila Ferreira", ClinicaGeral, "São Paulo", DefaultTimes),
		doc("doc-010", "Dr. Roberto Nunes", Psiquiatria, "Belo Horizonte", afternoon),
		doc("doc-011", "Dra. Luciana Martins", Endocrinologia, "Curitiba", morning),
		doc("doc-012", "Dr. Eduardo Pereira", ClinicaGeral, "Porto Alegre", DefaultTimes),
	}
}
