// Package monitor streams live training statistics to websocket clients.
// It is an optional callback handler: registering it is all the training
// loop knows about it.
package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"vecrl/core"
)

const (
	// Time allowed to write a message to a peer before it is dropped.
	writeWait = 5 * time.Second
)

// Message is the JSON payload pushed to every connected client.
type Message struct {
	Kind      string  `json:"kind"` // "rollout" or "update"
	Timesteps int     `json:"timesteps"`
	Iteration int     `json:"iteration,omitempty"`

	EpisodeRewardMean float64 `json:"episode_reward_mean,omitempty"`
	Episodes          int     `json:"episodes,omitempty"`
	MeanValue         float64 `json:"mean_value,omitempty"`

	Loss     float64 `json:"loss,omitempty"`
	Entropy  float64 `json:"entropy,omitempty"`
	GradNorm float64 `json:"grad_norm,omitempty"`
}

// Monitor is a websocket hub broadcasting rollout and update events.
type Monitor struct {
	addr   string
	log    zerolog.Logger
	server *http.Server

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

var (
	_ core.RolloutEndHandler = &Monitor{}
	_ core.UpdateEndHandler  = &Monitor{}
)

func New(addr string, log zerolog.Logger) *Monitor {
	return &Monitor{
		addr:  addr,
		log:   log.With().Str("component", "monitor").Logger(),
		conns: make(map[*websocket.Conn]bool),
	}
}

// Start serves the /ws endpoint until Stop is called.
func (m *Monitor) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.handleWS)
	m.server = &http.Server{Addr: m.addr, Handler: mux}
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Error().Err(err).Msg("monitor server stopped")
		}
	}()
}

func (m *Monitor) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	m.mu.Lock()
	for conn := range m.conns {
		conn.Close()
	}
	m.conns = make(map[*websocket.Conn]bool)
	m.mu.Unlock()
	return m.server.Shutdown(ctx)
}

func (m *Monitor) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	m.mu.Lock()
	m.conns[conn] = true
	m.mu.Unlock()
}

func (m *Monitor) OnRolloutEnd(e *core.RolloutEndEvent) {
	msg := &Message{
		Kind:      "rollout",
		Timesteps: e.Timesteps,
		Episodes:  len(e.EpisodeRewards),
		MeanValue: e.MeanValue,
	}
	if len(e.EpisodeRewards) > 0 {
		msg.EpisodeRewardMean = stat.Mean(e.EpisodeRewards, nil)
	}
	m.broadcast(msg)
}

func (m *Monitor) OnUpdateEnd(e *core.UpdateEndEvent) {
	m.broadcast(&Message{
		Kind:      "update",
		Timesteps: e.Timesteps,
		Iteration: e.Iteration,
		Loss:      e.Loss,
		Entropy:   e.Entropy,
		GradNorm:  e.GradNorm,
	})
}

// broadcast pushes the message to every client, dropping any connection
// that cannot keep up.
func (m *Monitor) broadcast(msg *Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(m.conns, conn)
		}
	}
}
