package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saraivavision/booking-api/internal/config"
	"github.com/saraivavision/booking-api/internal/db"
)

// Load generator for the booking API. Hammers the booking and confirmation
// endpoints from many workers and reports latency and conflict rates. Under
// contention on the same slot exactly one booking must win; everything else
// must come back as a 409 conflict, never a duplicate row.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	SlotLimit    int
	TokenLimit   int
	PostgresDSN  string
}

type slot struct {
	Date string
	Time string
}

// DataPool holds the slots and confirmation tokens the workers draw from.
type DataPool struct {
	Slots  []slot
	mu     sync.RWMutex
	tokens []string
}

func (dp *DataPool) AddToken(token string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.tokens = append(dp.tokens, token)
}

func (dp *DataPool) RandomToken(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.tokens) == 0 {
		return "", false
	}
	return dp.tokens[rng.Intn(len(dp.tokens))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Limited   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status == http.StatusOK || status == http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.Limited, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking      OperationMetrics
	Confirm      OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f confirm=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.ConfirmRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
	}

	if err := sim.loadSlots(ctx); err != nil {
		log.Fatalf("load slots: %v", err)
	}

	// Confirmation tokens never appear in API responses, so the pool is
	// primed straight from the database.
	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	if err := sim.loadTokens(ctx, pgPool); err != nil {
		pgPool.Close()
		log.Fatalf("load tokens: %v", err)
	}
	pgPool.Close()

	log.Printf("loaded: %d slots, %d tokens", len(sim.pool.Slots), len(sim.pool.tokens))

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 400),
		TokenLimit:   getInt("SIM_TOKEN_LIMIT", 1000),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadSlots seeds the slot pool from the public availability endpoint,
// available and taken slots alike so booking collisions actually happen.
func (s *Simulator) loadSlots(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.config.APIBaseURL+"/appointments/availability?days=14", nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("availability returned %d", resp.StatusCode)
	}

	var envelope struct {
		Data struct {
			Availability map[string][]struct {
				SlotTime string `json:"slot_time"`
			} `json:"availability"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}

	for date, slots := range envelope.Data.Availability {
		for _, sl := range slots {
			if len(s.pool.Slots) >= s.config.SlotLimit {
				return nil
			}
			s.pool.Slots = append(s.pool.Slots, slot{Date: date, Time: sl.SlotTime})
		}
	}

	if len(s.pool.Slots) == 0 {
		return fmt.Errorf("no bookable slots returned, run the seed tool first")
	}
	return nil
}

func (s *Simulator) loadTokens(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT token FROM appointments
		WHERE status IN ('pending', 'confirmed') AND appointment_date >= CURRENT_DATE
		LIMIT $1
	`, s.config.TokenLimit)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return err
		}
		s.pool.AddToken(token)
	}
	return rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(uint64(workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng, faker)
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			default:
				s.doAvailability(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	if len(s.pool.Slots) == 0 {
		return
	}
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	reqBody := map[string]string{
		"patient_name":     faker.Name(),
		"patient_email":    faker.Email(),
		"patient_phone":    fmt.Sprintf("(%d%d) 9%04d-%04d", rng.Intn(8)+1, rng.Intn(9)+1, rng.Intn(10000), rng.Intn(10000)),
		"appointment_date": sl.Date,
		"appointment_time": sl.Time,
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	// Spread requests over fake client IPs so the per-IP limiter does not
	// throttle the whole run.
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.%d.%d.%d", rng.Intn(256), rng.Intn(256), rng.Intn(254)+1))

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	s.metrics.Booking.Record(latency, status, err)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	token, ok := s.pool.RandomToken(rng)
	if !ok {
		return
	}

	action := "confirm"
	if rng.Intn(4) == 0 {
		action = "cancel"
	}
	body, _ := json.Marshal(map[string]string{"token": token, "action": action})

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/appointments/confirm", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	s.metrics.Confirm.Record(latency, status, err)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/appointments/availability?days=%d", s.config.APIBaseURL, rng.Intn(14)+1), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	s.metrics.Availability.Record(latency, status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm/Cancel", &s.metrics.Confirm)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	limited := atomic.LoadInt64(&om.Limited)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if limited > 0 {
		fmt.Printf("  Rate limited: %d (%.1f%%)\n", limited, float64(limited)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
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
