// internal/app/server.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/alarm"
	"github.com/rovshanmuradov/walletwatch/internal/monitor"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
	"github.com/rovshanmuradov/walletwatch/internal/trending"
)

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusStarting Status = "starting"
	StatusStale    Status = "stale"
)

type CycleSource interface {
	LastCycle() (monitor.CycleReport, bool)
}

type AlertSource interface {
	RecentAlerts(limit int) []alarm.Event
}

type TrendingSource interface {
	Top(ctx context.Context, k int) (*trending.Result, error)
}

// Server отдаёт /health, /metrics, /alerts и /trending.
type Server struct {
	cycles   CycleSource
	alerts   AlertSource
	trending TrendingSource
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates the HTTP server. interval – ожидаемый период цикла обновления.
func NewServer(addr string, cycles CycleSource, alerts AlertSource, trend TrendingSource, interval time.Duration, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cycles:   cycles,
		alerts:   alerts,
		trending: trend,
		interval: interval,
		now:      time.Now,
		logger:   logger.Named("http"),
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/trending", s.handleTrending)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start блокируется до остановки сервера.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler возвращает mux сервера.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type healthResponse struct {
	Status    Status `json:"status"`
	CycleID   string `json:"cycleId,omitempty"`
	Tokens    int    `json:"tokens"`
	Failed    int    `json:"failed"`
	LastCycle string `json:"lastCycle,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.cycles.LastCycle()
	resp := healthResponse{Status: StatusStarting}
	code := http.StatusOK

	if ok {
		resp = healthResponse{
			Status:    StatusHealthy,
			CycleID:   report.ID,
			Tokens:    report.Tokens,
			Failed:    report.Failed,
			LastCycle: report.FinishedAt.UTC().Format(time.RFC3339),
		}
		// три пропущенных цикла подряд
		if s.now().Sub(report.FinishedAt) > 3*s.interval {
			resp.Status = StatusStale
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, resp)
}

type alertView struct {
	ID            string  `json:"id"`
	UserID        string  `json:"userId"`
	Mint          string  `json:"mint"`
	Type          string  `json:"type"`
	PercentChange float64 `json:"percentChange"`
	WindowMinutes int     `json:"windowMinutes"`
	Message       string  `json:"message"`
	Timestamp     int64   `json:"timestamp"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	alerts := s.alerts.RecentAlerts(limit)
	views := make([]alertView, 0, len(alerts))
	for i := range alerts {
		a := &alerts[i]
		views = append(views, alertView{
			ID:            a.ID,
			UserID:        a.UserID,
			Mint:          a.Mint.String(),
			Type:          string(a.Type),
			PercentChange: a.PercentChange,
			WindowMinutes: a.WindowMinutes,
			Message:       a.Message(),
			Timestamp:     a.Timestamp.UnixMilli(),
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

type trendingView struct {
	Mint          string  `json:"mint"`
	PercentChange float64 `json:"percentChange"`
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	k, err := intParam(r, "k", 10)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.trending.Top(r.Context(), k)
	if err != nil {
		s.logger.Warn("Trending request failed", zap.Error(err))
		http.Error(w, "trending unavailable", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]trendingView{
		"winners": toTrendingViews(result.Winners),
		"losers":  toTrendingViews(result.Losers),
	})
}

func toTrendingViews(entries []storage.TrendingEntry) []trendingView {
	views := make([]trendingView, 0, len(entries))
	for _, e := range entries {
		views = append(views, trendingView{Mint: e.Mint.String(), PercentChange: e.PercentChange})
	}
	return views
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}
