package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-agent/internal/observability"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	HotSlots     int // size of the contended slot set
}

// slot is one bookable (doctor, date, time) the workers fight over.
type slot struct {
	DoctorID string
	Date     string
	Time     string
}

func (s slot) key() string { return s.DoctorID + "|" + s.Date + "|" + s.Time }

type DataPool struct {
	Slots     []slot
	mu        sync.RWMutex
	protocols []string
	confirmed map[string]int    // slot key -> 201 responses not yet cancelled
	slotOf    map[string]string // protocol -> slot key
}

func (dp *DataPool) AddBooking(protocol string, s slot) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.protocols = append(dp.protocols, protocol)
	dp.confirmed[s.key()]++
	dp.slotOf[protocol] = s.key()
}

func (dp *DataPool) Cancelled(protocol string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if key, ok := dp.slotOf[protocol]; ok {
		dp.confirmed[key]--
		delete(dp.slotOf, protocol)
	}
}

func (dp *DataPool) GetRandomProtocol(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.protocols) == 0 {
		return "", false
	}
	return dp.protocols[rng.Intn(len(dp.protocols))], true
}

// DoubleBooked returns the slots that ever held more than one live booking.
func (dp *DataPool) DoubleBooked() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	var out []string
	for key, n := range dp.confirmed {
		if n > 1 {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95), pct(99)
}

type Metrics struct {
	Booking      OperationMetrics
	Cancel       OperationMetrics
	ReadProtocol OperationMetrics
	FreeTimes    OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	_ = godotenv.Load()
	logger := observability.NewLogger("clinic-simulate", getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dataPool, err := sim.loadDataPool(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	sim.pool = dataPool
	logger.Info().Int("slots", len(dataPool.Slots)).Msg("loaded contended slots")

	sim.Run()
	sim.PrintReport()

	if bad := dataPool.DoubleBooked(); len(bad) > 0 {
		logger.Error().Strs("slots", bad).Msg("slots booked more than once")
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		HotSlots:     getInt("SIM_HOT_SLOTS", 30),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_HOT_SLOTS must be > 0")
	}
	return nil
}

// loadDataPool reads the roster from the API and keeps the first HotSlots
// declared slots so that concurrent workers collide on them.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/doctors", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list doctors: status %d", resp.StatusCode)
	}

	var list struct {
		Doctors []registry.Doctor `json:"doctors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode doctors: %w", err)
	}

	dp := &DataPool{
		confirmed: make(map[string]int),
		slotOf:    make(map[string]string),
	}
	for _, d := range list.Doctors {
		for _, date := range d.AvailableDates {
			for _, tm := range d.AvailableTimes {
				if len(dp.Slots) == s.config.HotSlots {
					return dp, nil
				}
				sl := slot{DoctorID: d.ID, Date: date, Time: tm}
				dp.Slots = append(dp.Slots, sl)
			}
		}
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no slots loaded")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(uint64(time.Now().UnixNano()) + uint64(workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng, faker)
			} else if r < s.config.BookingRatio+s.config.CancelRatio {
				s.doCancel(ctx, rng)
			} else {
				switch rng.Intn(3) {
				case 0:
					s.doReadProtocol(ctx, rng)
				case 1:
					s.doFreeTimes(ctx, rng)
				case 2:
					s.doAvailability(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	body, _ := json.Marshal(map[string]string{
		"doctor_id":    sl.DoctorID,
		"patient_name": faker.Name(),
		"date":         sl.Date,
		"time":         sl.Time,
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt struct {
				Protocol string `json:"protocol"`
			}
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.Protocol != "" {
				s.pool.AddBooking(appt.Protocol, sl)
			}
		case http.StatusConflict:
			conflict = true
		}
	}
	if ctx.Err() != nil && err != nil {
		return
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	protocol, ok := s.pool.GetRandomProtocol(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, url.PathEscape(protocol)), nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			success = true
			s.pool.Cancelled(protocol)
		case http.StatusConflict:
			conflict = true
		}
	}
	if ctx.Err() != nil && err != nil {
		return
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doReadProtocol(ctx context.Context, rng *rand.Rand) {
	protocol, ok := s.pool.GetRandomProtocol(rng)
	if !ok {
		return
	}
	s.get(ctx, &s.metrics.ReadProtocol,
		fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, url.PathEscape(protocol)))
}

func (s *Simulator) doFreeTimes(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	s.get(ctx, &s.metrics.FreeTimes,
		fmt.Sprintf("%s/doctors/%s/free-times?date=%s", s.config.APIBaseURL, sl.DoctorID, sl.Date))
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	s.get(ctx, &s.metrics.Availability,
		fmt.Sprintf("%s/doctors/%s/availability?date=%s&time=%s", s.config.APIBaseURL, sl.DoctorID, sl.Date, sl.Time))
}

func (s *Simulator) get(ctx context.Context, om *OperationMetrics, target string) {
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	if ctx.Err() != nil && err != nil {
		return
	}

	om.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by protocol", &s.metrics.ReadProtocol)
	printOperationReport("Free times", &s.metrics.FreeTimes)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
