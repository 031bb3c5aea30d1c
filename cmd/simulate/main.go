package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neiandria/clinic-scheduling/internal/config"
	"github.com/neiandria/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	CancelRatio     float64
	RescheduleRatio float64
	CompleteRatio   float64
	ReadRatio       float64
	StartDate       time.Time
	Days            int
}

type appointmentView struct {
	ID        int64  `json:"id"`
	DoctorID  int64  `json:"doctor_id"`
	PatientID int64  `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Status    string `json:"status"`
}

type idOnly struct {
	ID int64 `json:"id"`
}

// DataPool holds what workers pick from. Appointments grows as bookings
// succeed.
type DataPool struct {
	Doctors  []int64
	Patients []int64
	Slots    []string
	Dates    []string

	mu           sync.RWMutex
	appointments []int64
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func NewSimulator(cfg SimConfig, client *http.Client, logger *zap.Logger) *Simulator {
	return &Simulator{config: cfg, client: client, logger: logger}
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	logger := logging.New(baseCfg.Env)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.String("api", cfg.APIBaseURL),
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("reschedule", cfg.RescheduleRatio),
		zap.Float64("complete", cfg.CompleteRatio),
		zap.Float64("read", cfg.ReadRatio))

	sim := NewSimulator(cfg, &http.Client{Timeout: 10 * time.Second}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = sim.Load(ctx)
	cancel()
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}

	sim.Run(context.Background())

	doubles, err := sim.FindDoubleBookings(context.Background())
	if err != nil {
		logger.Error("double booking check failed", zap.Error(err))
	}
	printReport(os.Stdout, sim.config, &sim.metrics, doubles)
	if len(doubles) > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.45),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		CompleteRatio:   getFloat("SIM_COMPLETE_RATIO", 0.05),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		StartDate:       time.Now().AddDate(0, 0, 1),
		Days:            getInt("SIM_DAYS", 5),
	}
	if v := os.Getenv("SIM_START_DATE"); v != "" {
		if d, err := time.Parse("2006-01-02", v); err == nil {
			cfg.StartDate = d
		}
	}
	cfg.normalize()
	return cfg
}

func (c *SimConfig) normalize() {
	total := c.BookingRatio + c.CancelRatio + c.RescheduleRatio + c.CompleteRatio + c.ReadRatio
	if total > 0 {
		c.BookingRatio /= total
		c.CancelRatio /= total
		c.RescheduleRatio /= total
		c.CompleteRatio /= total
		c.ReadRatio /= total
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("SIM_API_BASE_URL is required")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

// Load fetches doctors, patients and the slot catalog from the API.
func (s *Simulator) Load(ctx context.Context) error {
	dp := &DataPool{}

	var docs []idOnly
	if err := s.getJSON(ctx, "/doctors", &docs); err != nil {
		return fmt.Errorf("load doctors: %w", err)
	}
	for _, d := range docs {
		dp.Doctors = append(dp.Doctors, d.ID)
	}

	var patients []idOnly
	if err := s.getJSON(ctx, "/patients", &patients); err != nil {
		return fmt.Errorf("load patients: %w", err)
	}
	for _, p := range patients {
		dp.Patients = append(dp.Patients, p.ID)
	}

	var catalog struct {
		Slots []string `json:"slots"`
	}
	if err := s.getJSON(ctx, "/slots", &catalog); err != nil {
		return fmt.Errorf("load slots: %w", err)
	}
	dp.Slots = catalog.Slots

	for i := 0; i < s.config.Days; i++ {
		dp.Dates = append(dp.Dates, s.config.StartDate.AddDate(0, 0, i).Format("2006-01-02"))
	}

	switch {
	case len(dp.Doctors) == 0:
		return fmt.Errorf("no doctors loaded")
	case len(dp.Patients) == 0:
		return fmt.Errorf("no patients loaded")
	case len(dp.Slots) == 0:
		return fmt.Errorf("no slots loaded")
	}

	s.logger.Info("data pool loaded",
		zap.Int("doctors", len(dp.Doctors)),
		zap.Int("patients", len(dp.Patients)),
		zap.Int("slots", len(dp.Slots)),
		zap.Int("days", len(dp.Dates)))
	s.pool = dp
	return nil
}

func (s *Simulator) Run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.CancelRatio:
			s.doTransition(ctx, rng, "cancel", &s.metrics.Cancel)
		case r < c.BookingRatio+c.CancelRatio+c.RescheduleRatio:
			s.doReschedule(ctx, rng)
		case r < c.BookingRatio+c.CancelRatio+c.RescheduleRatio+c.CompleteRatio:
			s.doTransition(ctx, rng, "complete", &s.metrics.Complete)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByDoctor(ctx, rng)
			case 2:
				s.doAvailability(ctx, rng)
			}
		}
	}
}

func (s *Simulator) pick(rng *rand.Rand) (doctor, patient int64, date, slot string) {
	p := s.pool
	return p.Doctors[rng.Intn(len(p.Doctors))],
		p.Patients[rng.Intn(len(p.Patients))],
		p.Dates[rng.Intn(len(p.Dates))],
		p.Slots[rng.Intn(len(p.Slots))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctor, patient, date, slot := s.pick(rng)
	body := map[string]any{
		"doctor_id":  doctor,
		"patient_id": patient,
		"date":       date,
		"time":       slot,
	}

	var created idOnly
	latency, status, err := s.send(ctx, http.MethodPost, "/appointments", body, &created)
	ok := err == nil && status == http.StatusCreated
	if ok && created.ID != 0 {
		s.pool.AddAppointment(created.ID)
	}
	s.metrics.Booking.Record(latency, ok, status == http.StatusConflict)
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, op string, om *OperationMetrics) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	latency, status, err := s.send(ctx, http.MethodPost, fmt.Sprintf("/appointments/%d/%s", id, op), nil, nil)
	om.Record(latency, err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	_, _, date, slot := s.pick(rng)

	var moved idOnly
	latency, status, err := s.send(ctx, http.MethodPost, fmt.Sprintf("/appointments/%d/reschedule", id),
		map[string]string{"date": date, "time": slot}, &moved)
	success := err == nil && status == http.StatusCreated
	if success && moved.ID != 0 {
		s.pool.AddAppointment(moved.ID)
	}
	s.metrics.Reschedule.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	latency, status, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/appointments/%d", id), nil, nil)
	s.metrics.ReadByID.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListByDoctor(ctx context.Context, rng *rand.Rand) {
	doctor, _, _, _ := s.pick(rng)
	latency, status, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/appointments?doctor_id=%d", doctor), nil, nil)
	s.metrics.ListDoctor.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	doctor, _, date, _ := s.pick(rng)
	latency, status, err := s.send(ctx, http.MethodGet, fmt.Sprintf("/doctors/%d/availability?date=%s", doctor, date), nil, nil)
	s.metrics.Slots.Record(latency, err == nil && status == http.StatusOK, false)
}

// FindDoubleBookings lists every doctor, date and time that holds more than
// one scheduled appointment.
func (s *Simulator) FindDoubleBookings(ctx context.Context) ([]string, error) {
	var scheduled []appointmentView
	if err := s.getJSON(ctx, "/appointments?status=scheduled", &scheduled); err != nil {
		return nil, err
	}
	return doubleBookings(scheduled), nil
}

func doubleBookings(appts []appointmentView) []string {
	type key struct {
		doctor     int64
		date, slot string
	}
	seen := make(map[key]int64)
	var out []string
	for _, a := range appts {
		k := key{a.DoctorID, a.Date, a.Time}
		if first, ok := seen[k]; ok {
			out = append(out, fmt.Sprintf("doctor %d at %s %s: appointments %d and %d", a.DoctorID, a.Date, a.Time, first, a.ID))
			continue
		}
		seen[k] = a.ID
	}
	return out
}

func (s *Simulator) getJSON(ctx context.Context, path string, out any) error {
	_, status, err := s.send(ctx, http.MethodGet, path, nil, out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, status)
	}
	return nil
}

// send issues one request and decodes a 2xx body into out when non-nil.
func (s *Simulator) send(ctx context.Context, method, path string, body, out any) (time.Duration, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode/100 == 2 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return latency, resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return latency, resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return latency, resp.StatusCode, nil
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
