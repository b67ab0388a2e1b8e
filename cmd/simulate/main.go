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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vetdesk/vet-booking/internal/api"
	"github.com/vetdesk/vet-booking/internal/config"
	"github.com/vetdesk/vet-booking/internal/db"
	"github.com/vetdesk/vet-booking/internal/directory"
)

// The simulator hammers the reserve -> book path with many concurrent owners
// competing for a small window of slots, to observe conflict rates and
// latency under contention.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	CancelRatio float64
	SlotHours   int
	PostgresDSN string
	JWTSecret   string
}

type ownerIdentity struct {
	UserID uuid.UUID
	PetID  uuid.UUID
	Token  string
}

type DataPool struct {
	Owners  []ownerIdentity
	Vets    []uuid.UUID
	Clinics map[uuid.UUID]uuid.UUID // vet -> clinic

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

type Metrics struct {
	Reserve OperationMetrics
	Book    OperationMetrics
	Cancel  OperationMetrics
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

	cfg := loadSimConfig()

	log.Printf("config: duration=%s workers=%d cancel=%.2f slot_hours=%d",
		cfg.Duration, cfg.Workers, cfg.CancelRatio, cfg.SlotHours)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d owners, %d vets", len(dataPool.Owners), len(dataPool.Vets))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 20),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.1),
		SlotHours:   getInt("SIM_SLOT_HOURS", 8),
		PostgresDSN: baseCfg.PostgresDSN,
		JWTSecret:   baseCfg.JWTSecret,
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	auth := api.NewAuth(cfg.JWTSecret)
	dp := &DataPool{Clinics: make(map[uuid.UUID]uuid.UUID)}

	rows, err := pool.Query(ctx, `
		SELECT p.owner_id, p.id
		FROM pets p
		ORDER BY p.created_at
		LIMIT 2000
	`)
	if err != nil {
		return nil, fmt.Errorf("load pets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o ownerIdentity
		if err := rows.Scan(&o.UserID, &o.PetID); err != nil {
			return nil, err
		}
		token, err := auth.IssueToken(directory.Actor{ID: o.UserID, Kind: directory.ActorOwner}, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		o.Token = token
		dp.Owners = append(dp.Owners, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vetRows, err := pool.Query(ctx, `
		SELECT v.id, m.clinic_id
		FROM vets v
		JOIN vet_clinic_memberships m ON m.vet_id = v.id
		WHERE v.active
	`)
	if err != nil {
		return nil, fmt.Errorf("load vets: %w", err)
	}
	defer vetRows.Close()

	for vetRows.Next() {
		var vetID, clinicID uuid.UUID
		if err := vetRows.Scan(&vetID, &clinicID); err != nil {
			return nil, err
		}
		dp.Vets = append(dp.Vets, vetID)
		dp.Clinics[vetID] = clinicID
	}
	if err := vetRows.Err(); err != nil {
		return nil, err
	}

	if len(dp.Owners) == 0 || len(dp.Vets) == 0 {
		return nil, fmt.Errorf("no seed data; run cmd/seed first")
	}

	return dp, nil
}

func (s *Simulator) Run() {
	log.Printf("running %d workers for %s", s.config.Workers, s.config.Duration)

	deadline := time.Now().Add(s.config.Duration)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				s.step()
			}
		}()
	}
	wg.Wait()
}

func (s *Simulator) step() {
	owner := s.pool.Owners[rand.Intn(len(s.pool.Owners))]

	if rand.Float64() < s.config.CancelRatio {
		if id, ok := s.pool.RandomAppointment(); ok {
			s.cancel(owner, id)
			return
		}
	}

	vetID := s.pool.Vets[rand.Intn(len(s.pool.Vets))]

	// Next-day slots on the hour, a narrow window so workers collide.
	slot := time.Now().UTC().Truncate(time.Hour).
		Add(24 * time.Hour).
		Add(time.Duration(rand.Intn(s.config.SlotHours)) * time.Hour)

	if !s.reserve(owner, vetID, slot) {
		return
	}
	s.book(owner, vetID, slot)
}

func (s *Simulator) reserve(owner ownerIdentity, vetID uuid.UUID, slot time.Time) bool {
	body := map[string]any{
		"practitioner_id":  vetID.String(),
		"slot_time":        slot.Format(time.RFC3339),
		"duration_minutes": 30,
	}

	status, _, latency := s.post(owner.Token, "/reservations", body)
	s.metrics.Reserve.Record(latency, status)
	return status == http.StatusCreated
}

func (s *Simulator) book(owner ownerIdentity, vetID uuid.UUID, slot time.Time) {
	body := map[string]any{
		"pet_id":          owner.PetID.String(),
		"practitioner_id": vetID.String(),
		"clinic_id":       s.pool.Clinics[vetID].String(),
		"slot_time":       slot.Format(time.RFC3339),
		"type":            "CHECKUP",
	}

	status, respBody, latency := s.post(owner.Token, "/appointments", body)
	s.metrics.Book.Record(latency, status)

	if status == http.StatusCreated {
		var resp struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(respBody, &resp); err == nil && resp.ID != uuid.Nil {
			s.pool.AddAppointment(resp.ID)
		}
	}
}

func (s *Simulator) cancel(owner ownerIdentity, id uuid.UUID) {
	start := time.Now()
	req, err := http.NewRequest(http.MethodPost, s.config.APIBaseURL+"/appointments/"+id.String()+"/cancel", nil)
	if err != nil {
		s.metrics.Cancel.Record(time.Since(start), 0)
		return
	}
	req.Header.Set("Authorization", "Bearer "+owner.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.Cancel.Record(time.Since(start), 0)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	s.metrics.Cancel.Record(time.Since(start), resp.StatusCode)
}

func (s *Simulator) post(token, path string, body any) (int, []byte, time.Duration) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, 0
	}

	start := time.Now()
	req, err := http.NewRequest(http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, time.Since(start)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, time.Since(start)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, respBody, time.Since(start)
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== simulation report ===")
	printOp("reserve", &s.metrics.Reserve)
	printOp("book", &s.metrics.Book)
	printOp("cancel", &s.metrics.Cancel)
}

func printOp(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Printf("%-8s no operations\n", name)
		return
	}
	avg, p50, p95 := om.Stats()
	fmt.Printf("%-8s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s\n",
		name, total,
		atomic.LoadInt64(&om.Success),
		atomic.LoadInt64(&om.Conflict),
		atomic.LoadInt64(&om.Error),
		avg, p50, p95)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
