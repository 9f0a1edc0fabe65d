package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/clinic-booking-agent/internal/config"
	"github.com/hackgods/clinic-booking-agent/internal/db"
	"github.com/hackgods/clinic-booking-agent/internal/observability"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
)

var cities = []string{
	"São Paulo", "Rio de Janeiro", "Belo Horizonte", "Curitiba", "Porto Alegre",
	"Salvador", "Recife", "Fortaleza", "Brasília", "Florianópolis",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger("clinic-seed", cfg.Env, cfg.LogLevel)

	if cfg.PostgresDSN == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}
	extra := 40
	if v := os.Getenv("SEED_EXTRA_DOCTORS"); v != "" {
		if extra, err = strconv.Atoi(v); err != nil || extra < 0 {
			logger.Fatal().Str("value", v).Msg("SEED_EXTRA_DOCTORS must be a non-negative integer")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	today := time.Now().In(cfg.Location)
	doctors := registry.DefaultRoster(today)
	doctors = append(doctors, fakeDoctors(gofakeit.New(0), today, len(doctors)+1, extra)...)

	if err := registry.SaveToPostgres(ctx, pool, doctors); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}

	logger.Info().Int("doctors", len(doctors)).Msg("seed complete")
}

// fakeDoctors generates count doctors with ids starting at doc-<first>, random
// specialty, city and either a morning or afternoon schedule.
func fakeDoctors(faker *gofakeit.Faker, today time.Time, first, count int) []registry.Doctor {
	dates := registry.UpcomingWeekdays(today, 10)
	out := make([]registry.Doctor, 0, count)
	for i := 0; i < count; i++ {
		title := "Dr."
		if faker.Bool() {
			title = "Dra."
		}
		times := registry.DefaultTimes[:3]
		if faker.Bool() {
			times = registry.DefaultTimes[3:]
		}
		out = append(out, registry.Doctor{
			ID:             fmt.Sprintf("doc-%03d", first+i),
			Name:           title + " " + faker.FirstName() + " " + faker.LastName(),
			Specialty:      registry.Specialties[faker.Number(0, len(registry.Specialties)-1)],
			City:           cities[faker.Number(0, len(cities)-1)],
			AvailableDates: dates,
			AvailableTimes: times,
		})
	}
	return out
}
