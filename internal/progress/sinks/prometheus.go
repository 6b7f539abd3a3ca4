package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/docprobe/internal/progress"
)

// PrometheusSink exports run and item metrics. It owns all collectors and
// registers them on construction.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	items        *prometheus.CounterVec
	itemBytes    *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	runProgress  *prometheus.GaugeVec

	mu      sync.Mutex
	running map[[16]byte]string
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docprobe_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docprobe_runs_completed_total",
			Help: "Total runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docprobe_runs_running",
			Help: "Current number of running runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docprobe_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
		}, []string{"result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docprobe_items_total",
			Help: "Completed work items partitioned by run and outcome status.",
		}, []string{"run", "status"}),
		itemBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docprobe_item_bytes_total",
			Help: "Bytes reported by found items per run.",
		}, []string{"run"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docprobe_item_duration_seconds",
			Help:    "Per-item execution time partitioned by outcome status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 300},
		}, []string{"status"}),
		runProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docprobe_run_progress_ratio",
			Help: "Completed over total items for each active run.",
		}, []string{"run"}),
		running: make(map[[16]byte]string),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.items,
		s.itemBytes,
		s.itemDuration,
		s.runProgress,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.start(evt.RunID, evt.Run) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone, progress.StageRunError:
			result := "success"
			if evt.Stage == progress.StageRunError {
				result = "error"
			}
			s.runsCompleted.WithLabelValues(result).Inc()
			if evt.Dur > 0 {
				s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
			if run, ok := s.complete(evt.RunID); ok {
				s.runsRunning.Dec()
				s.runProgress.DeleteLabelValues(run)
			}
		case progress.StageItemDone:
			s.handleItem(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) handleItem(evt progress.Event) {
	run := evt.Run
	if run == "" {
		run = "unknown"
	}
	s.items.WithLabelValues(run, string(evt.Status)).Inc()
	if evt.Bytes > 0 {
		s.itemBytes.WithLabelValues(run).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.itemDuration.WithLabelValues(string(evt.Status)).Observe(evt.Dur.Seconds())
	}
	if evt.Total > 0 {
		s.runProgress.WithLabelValues(run).Set(float64(evt.Completed) / float64(evt.Total))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func (s *PrometheusSink) start(id [16]byte, run string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[id]; ok {
		return false
	}
	s.running[id] = run
	return true
}

func (s *PrometheusSink) complete(id [16]byte) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.running[id]
	if ok {
		delete(s.running, id)
	}
	return run, ok
}
