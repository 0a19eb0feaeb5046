package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the game server.
// Registration uses a private registry so multiple servers (tests) can
// coexist in one process.
type Metrics struct {
	game     *Game
	registry *prometheus.Registry

	sessionsConnected prometheus.GaugeFunc
	playersInGame     prometheus.GaugeFunc
	connectionsTotal  prometheus.Counter
	commandsTotal     prometheus.Counter
	broadcastsTotal   prometheus.Counter
	authFailuresTotal prometheus.Counter
}

// NewMetrics creates and registers metrics for a game.
func NewMetrics(game *Game) *Metrics {
	m := &Metrics{
		game:     game,
		registry: prometheus.NewRegistry(),
		sessionsConnected: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "emberfall_sessions_connected",
			Help: "Number of live sessions in any state.",
		}, func() float64 { return float64(game.Sessions.Count()) }),
		playersInGame: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "emberfall_players_in_game",
			Help: "Number of authenticated sessions.",
		}, func() float64 { return float64(game.Sessions.AuthenticatedCount()) }),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emberfall_connections_total",
			Help: "Total connections accepted since server start.",
		}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emberfall_commands_total",
			Help: "Total commands dispatched since server start.",
		}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emberfall_broadcasts_total",
			Help: "Total broadcast calls since server start.",
		}),
		authFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emberfall_auth_failures_total",
			Help: "Total failed credential checks since server start.",
		}),
	}

	m.registry.MustRegister(
		m.sessionsConnected,
		m.playersInGame,
		m.connectionsTotal,
		m.commandsTotal,
		m.broadcastsTotal,
		m.authFailuresTotal,
	)
	return m
}

// Handler returns the scrape endpoint for this server's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
