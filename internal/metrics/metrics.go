// Package metrics exposes Prometheus collectors for the scoring pipeline.
// A nil *Collectors is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type Collectors struct {
	PointsAwarded     prometheus.Counter
	Answers           *prometheus.CounterVec
	DailyCapClamped   prometheus.Counter
	DecayApplied      prometheus.Counter
	StoreFallback     *prometheus.CounterVec
	SessionsCommitted *prometheus.CounterVec
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		PointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ascendly_points_awarded_total",
			Help: "Points committed to account scores after session bonuses and the daily cap",
		}),
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ascendly_answers_total",
			Help: "Answers scored",
		}, []string{"correct"}),
		DailyCapClamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ascendly_daily_cap_clamped_total",
			Help: "Session commits reduced by the daily cap",
		}),
		DecayApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ascendly_decay_applied_total",
			Help: "Account decays applied before a commit",
		}),
		StoreFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ascendly_store_fallback_total",
			Help: "Store operations served by the local degraded store",
		}, []string{"op"}),
		SessionsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ascendly_sessions_committed_total",
			Help: "Quiz sessions committed, by final state",
		}, []string{"state"}),
	}
	reg.MustRegister(c.PointsAwarded, c.Answers, c.DailyCapClamped, c.DecayApplied, c.StoreFallback, c.SessionsCommitted)
	return c
}

func (c *Collectors) ObserveAnswer(correct bool) {
	if c == nil {
		return
	}
	c.Answers.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

func (c *Collectors) ObserveCommit(state string, points int, clamped, decayed bool) {
	if c == nil {
		return
	}
	c.SessionsCommitted.WithLabelValues(state).Inc()
	c.PointsAwarded.Add(float64(points))
	if clamped {
		c.DailyCapClamped.Inc()
	}
	if decayed {
		c.DecayApplied.Inc()
	}
}

func (c *Collectors) ObserveFallback(op string) {
	if c == nil {
		return
	}
	c.StoreFallback.WithLabelValues(op).Inc()
}
