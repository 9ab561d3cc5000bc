package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_deliveries_total",
		Help: "Deliveries resolved by the worker, by outcome",
	}, []string{"outcome"})

	stageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_stage_failures_total",
		Help: "Pipeline failures by stage",
	}, []string{"stage"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recorder_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage",
		Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
	}, []string{"stage"})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_in_flight",
		Help: "Deliveries currently being processed (0 or 1)",
	})

	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_jobs_published_total",
		Help: "Recording jobs published by the API, by result",
	}, []string{"result"})
)

// ObserveDelivery counts one resolved delivery
func ObserveDelivery(outcome string) {
	deliveriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took and whether it failed
func ObserveStage(stage string, start time.Time, err error) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		stageFailuresTotal.WithLabelValues(stage).Inc()
	}
}

// TrackInFlight marks a delivery as started; call the returned func when done
func TrackInFlight() func() {
	inFlight.Inc()
	return inFlight.Dec
}

// ObservePublish counts one publish attempt made by the API
func ObservePublish(err error) {
	if err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return
	}
	publishedTotal.WithLabelValues("ok").Inc()
}
