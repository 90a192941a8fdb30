package internal

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"timekeeper/internal/presence"
	"timekeeper/internal/protocol"
)

type announcement struct {
	conn     *Conn
	snapshot presence.Snapshot
}

// Hub owns the set of live connections and the presence registry. All
// registry mutations and broadcasts happen on the Run goroutine.
type Hub struct {
	registry   *presence.Registry
	clients    map[*Conn]struct{}
	register   chan *Conn
	unregister chan *Conn
	announce   chan announcement
	counterSig chan struct{}
	done       chan struct{}

	// latestCounter is written by publishers, lastCounter only by Run.
	latestCounter atomic.Int64
	lastCounter   int64
	connections   atomic.Int64

	metrics *Metrics
	logger  zerolog.Logger
}

// NewHub builds a hub whose counter starts at initialCounter.
func NewHub(initialCounter int64, metrics *Metrics, logger zerolog.Logger) *Hub {
	if metrics == nil {
		metrics = NewMetrics()
	}
	hub := &Hub{
		registry:    presence.NewRegistry(),
		clients:     make(map[*Conn]struct{}),
		register:    make(chan *Conn),
		unregister:  make(chan *Conn),
		announce:    make(chan announcement, 256),
		counterSig:  make(chan struct{}, 1),
		done:        make(chan struct{}),
		lastCounter: initialCounter,
		metrics:     metrics,
		logger:      logger,
	}
	hub.latestCounter.Store(initialCounter)
	metrics.SetGlobalCounter(initialCounter)
	return hub
}

// PublishGlobalCounter records a new counter value without blocking. Bursts
// are coalesced; the hub always broadcasts the highest value seen.
func (hub *Hub) PublishGlobalCounter(value int64) {
	for {
		current := hub.latestCounter.Load()
		if value <= current {
			break
		}
		if hub.latestCounter.CompareAndSwap(current, value) {
			break
		}
	}
	select {
	case hub.counterSig <- struct{}{}:
	default:
	}
}

// Roster returns the current aggregated presence list.
func (hub *Hub) Roster() []presence.Aggregated {
	return hub.registry.Aggregate()
}

// ConnectionCount reports the number of registered connections.
func (hub *Hub) ConnectionCount() int64 {
	return hub.connections.Load()
}

// Run serves hub events until ctx is canceled, then closes every connection.
func (hub *Hub) Run(ctx context.Context) {
	defer close(hub.done)
	for {
		select {
		case <-ctx.Done():
			for conn := range hub.clients {
				delete(hub.clients, conn)
				close(conn.send)
				hub.connections.Add(-1)
				hub.metrics.DecConn()
			}
			return
		case conn := <-hub.register:
			hub.clients[conn] = struct{}{}
			hub.connections.Add(1)
			hub.metrics.IncConn()
			if payload, err := protocol.EncodeCounter(hub.lastCounter); err == nil {
				hub.sendTo(conn, payload)
			}
			if payload, err := protocol.EncodeRoster(hub.registry.Aggregate()); err == nil {
				hub.sendTo(conn, payload)
			}
			hub.logger.Debug().Str("connection_id", conn.id).Msg("connection registered")
		case conn := <-hub.unregister:
			if _, ok := hub.clients[conn]; ok {
				hub.drop(conn)
			}
		case evt := <-hub.announce:
			if _, ok := hub.clients[evt.conn]; !ok {
				continue
			}
			if !hub.registry.Upsert(evt.conn.id, evt.snapshot) {
				continue
			}
			hub.metrics.IncAnnouncement()
			hub.broadcastRoster()
		case <-hub.counterSig:
			value := hub.latestCounter.Load()
			if value <= hub.lastCounter {
				continue
			}
			hub.lastCounter = value
			hub.metrics.SetGlobalCounter(value)
			payload, err := protocol.EncodeCounter(value)
			if err != nil {
				hub.logger.Error().Err(err).Msg("encode counter")
				continue
			}
			hub.broadcast(payload)
		}
	}
}

// Done is closed once Run has returned.
func (hub *Hub) Done() <-chan struct{} {
	return hub.done
}

func (hub *Hub) broadcastRoster() {
	roster := hub.registry.Aggregate()
	hub.metrics.SetRosterSize(len(roster))
	payload, err := protocol.EncodeRoster(roster)
	if err != nil {
		hub.logger.Error().Err(err).Msg("encode roster")
		return
	}
	hub.broadcast(payload)
}

func (hub *Hub) broadcast(payload []byte) {
	for conn := range hub.clients {
		hub.sendTo(conn, payload)
	}
}

// sendTo queues payload for conn. A client that can't keep up is dropped.
func (hub *Hub) sendTo(conn *Conn, payload []byte) {
	if _, ok := hub.clients[conn]; !ok {
		return
	}
	select {
	case conn.send <- payload:
	default:
		hub.logger.Warn().Str("connection_id", conn.id).Msg("dropping slow client")
		hub.drop(conn)
	}
}

// drop forgets conn, closes its send queue and rebroadcasts the roster when
// the connection had announced.
func (hub *Hub) drop(conn *Conn) {
	if _, ok := hub.clients[conn]; !ok {
		return
	}
	delete(hub.clients, conn)
	close(conn.send)
	hub.connections.Add(-1)
	hub.metrics.DecConn()
	if hub.registry.Remove(conn.id) {
		hub.broadcastRoster()
	}
}

func (hub *Hub) enqueueRegister(conn *Conn) bool {
	select {
	case hub.register <- conn:
		return true
	case <-hub.done:
		return false
	}
}

func (hub *Hub) enqueueUnregister(conn *Conn) {
	select {
	case hub.unregister <- conn:
	case <-hub.done:
	}
}

func (hub *Hub) enqueueAnnounce(conn *Conn, snap presence.Snapshot) {
	select {
	case hub.announce <- announcement{conn: conn, snapshot: snap}:
	case <-hub.done:
	}
}
