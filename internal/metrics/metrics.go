package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "covertduel_sessions_created_total",
		Help: "Sessions created since process start.",
	})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "covertduel_sessions_active",
		Help: "Sessions currently running.",
	})
	MessagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "covertduel_messages_handled_total",
		Help: "Inbound protocol messages handled, by type.",
	}, []string{"type"})
	Disconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "covertduel_disconnects_total",
		Help: "Participants disconnected for protocol violations.",
	})
)
