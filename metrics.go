package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var metricsRegistry = prometheus.NewRegistry()

var (
	actionsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werewolf_actions_submitted_total",
			Help: "Accepted player actions by type",
		},
		[]string{"type"},
	)
	phaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werewolf_phase_transitions_total",
			Help: "Phases resolved, by the phase that ended",
		},
		[]string{"phase"},
	)
	staleTransitions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "werewolf_stale_transitions_total",
		Help: "Phase-end calls that found the game already past the expected turn and phase",
	})
	gamesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "werewolf_games_started_total",
		Help: "Games moved from lobby to active",
	})
	gamesEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "werewolf_games_ended_total",
			Help: "Finished games by winning team and reason",
		},
		[]string{"winner", "reason"},
	)
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "werewolf_websocket_connections",
		Help: "Open WebSocket connections",
	})
)

func init() {
	metricsRegistry.MustRegister(
		actionsSubmitted,
		phaseTransitions,
		staleTransitions,
		gamesStarted,
		gamesEnded,
		wsConnections,
		collectors.NewGoCollector(),
	)
}

var metricsHandler = promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
