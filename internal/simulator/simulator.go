package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
)

type Config struct {
	Port int
	// AutoCreate makes unknown metric names start at Defaults instead of
	// returning 404.
	AutoCreate bool
	Defaults   MetricConfig
	Seed       int64
}

// Simulator serves synthetic metric values in the format the HTTP metric
// source reads: GET /metrics/{name} -> {"name","value","timestamp"}.
type Simulator struct {
	config     Config
	metrics    map[string]*MetricSim
	seq        int64
	mu         sync.RWMutex
	httpServer *http.Server
}

func New(cfg Config) *Simulator {
	if cfg.Port == 0 {
		cfg.Port = 9000
	}
	if cfg.Defaults.Max <= cfg.Defaults.Min {
		cfg.Defaults = MetricConfig{Base: 50, Variance: 5, Min: 0, Max: 100}
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Simulator{
		config:  cfg,
		metrics: make(map[string]*MetricSim),
	}
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", cors(s.healthHandler))
	mux.HandleFunc("GET /metrics", cors(s.listMetricsHandler))
	mux.HandleFunc("GET /metrics/{name...}", cors(s.readMetricHandler))
	mux.HandleFunc("PUT /metrics/{name...}", cors(s.putMetricHandler))
	mux.HandleFunc("DELETE /metrics/{name...}", cors(s.deleteMetricHandler))
	mux.HandleFunc("POST /spike", cors(s.spikeHandler))
	mux.HandleFunc("POST /pattern", cors(s.patternHandler))
	return mux
}

func (s *Simulator) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Infof("Simulator listening on %s", addr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Simulator server error: %v", err)
		}
	}()

	return nil
}

func (s *Simulator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Metric returns the named metric, creating it from cfg when absent.
func (s *Simulator) Metric(name string, cfg MetricConfig) *MetricSim {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.metrics[name]; ok {
		return m
	}
	s.seq++
	m := NewMetricSim(name, cfg, s.config.Seed+s.seq)
	s.metrics[name] = m
	logger.WithField("metric", name).Info("Created simulated metric")
	return m
}

func (s *Simulator) lookup(name string) (*MetricSim, bool) {
	s.mu.RLock()
	m, ok := s.metrics[name]
	s.mu.RUnlock()
	if !ok && s.config.AutoCreate {
		return s.Metric(name, s.config.Defaults), true
	}
	return m, ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Simulator) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "metrics-simulator",
	})
}

type MetricValue struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

func (s *Simulator) readMetricHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	m, ok := s.lookup(name)
	if !ok {
		http.Error(w, "metric not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, MetricValue{
		Name:      name,
		Value:     m.Read(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Simulator) listMetricsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	statuses := make([]MetricStatus, 0, len(s.metrics))
	for _, m := range s.metrics {
		statuses = append(statuses, m.Status())
	}
	s.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": statuses,
		"count":   len(statuses),
	})
}

type PutMetricRequest struct {
	Base     *float64 `json:"base"`
	Variance *float64 `json:"variance"`
	Pattern  string   `json:"pattern"`
}

func (s *Simulator) putMetricHandler(w http.ResponseWriter, r *http.Request) {
	var req PutMetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m := s.Metric(r.PathValue("name"), s.config.Defaults)
	if req.Base != nil {
		m.SetBase(*req.Base)
	}
	if req.Variance != nil {
		m.SetVariance(*req.Variance)
	}
	if req.Pattern != "" {
		m.SetPattern(ParsePattern(req.Pattern))
	}

	writeJSON(w, http.StatusOK, m.Status())
}

func (s *Simulator) deleteMetricHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	s.mu.Lock()
	_, ok := s.metrics[name]
	delete(s.metrics, name)
	s.mu.Unlock()

	if !ok {
		http.Error(w, "metric not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "metric deleted"})
}

type SpikeRequest struct {
	Metric   string  `json:"metric"`
	Target   float64 `json:"target"`
	Duration string  `json:"duration"`
	RampUp   string  `json:"ramp_up"`
}

func (s *Simulator) spikeHandler(w http.ResponseWriter, r *http.Request) {
	var req SpikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Metric == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		duration = 5 * time.Minute
	}
	rampUp, err := time.ParseDuration(req.RampUp)
	if err != nil {
		rampUp = 30 * time.Second
	}

	s.Metric(req.Metric, s.config.Defaults).InjectSpike(req.Target, duration, rampUp)

	logger.Infof("Injected spike on %s: target=%.1f, duration=%s", req.Metric, req.Target, duration)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "spike injected",
		"metric":   req.Metric,
		"target":   req.Target,
		"duration": duration.String(),
		"ramp_up":  rampUp.String(),
	})
}

type PatternRequest struct {
	Metric  string `json:"metric"`
	Pattern string `json:"pattern"`
}

func (s *Simulator) patternHandler(w http.ResponseWriter, r *http.Request) {
	var req PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Metric == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pattern := ParsePattern(req.Pattern)
	s.Metric(req.Metric, s.config.Defaults).SetPattern(pattern)

	logger.Infof("Set pattern %s on %s", pattern.Name(), req.Metric)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "pattern set",
		"metric":  req.Metric,
		"pattern": pattern.Name(),
	})
}
