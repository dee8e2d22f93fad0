// Package streaming pushes session slot changes to websocket clients
package streaming

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lunfardo314/ledgerchat/api"
	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/views"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	environment interface {
		global.Logging
		global.Metrics
	}

	// Hub fans out slot events to connected clients. Each new client first receives current values of all slots
	Hub struct {
		environment
		cache  *session.Cache
		engine *views.Engine

		mutex   sync.RWMutex
		clients map[*client]struct{}

		clientsGauge prometheus.Gauge
		dropped      prometheus.Counter
	}

	client struct {
		remote string
		events chan api.SlotEvent
	}
)

const (
	TraceTag = "streaming"

	clientBufferSize = 256
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API listens on local interface only, the UI may be served from any origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewHub(env environment, cache *session.Cache, engine *views.Engine) *Hub {
	ret := &Hub{
		environment: env,
		cache:       cache,
		engine:      engine,
		clients:     make(map[*client]struct{}),
	}
	if reg := env.MetricsRegistry(); reg != nil {
		ret.clientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerchat_ws_clients",
			Help: "connected websocket clients",
		})
		ret.dropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerchat_ws_dropped_events_total",
			Help: "slot events dropped because of slow clients",
		})
		reg.MustRegister(ret.clientsGauge, ret.dropped)
	}
	api.ListenSlotEvents(cache, engine, ret.publish)
	return ret
}

func (h *Hub) publish(ev api.SlotEvent) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for cl := range h.clients {
		select {
		case cl.events <- ev:
		default:
			h.Tracef(TraceTag, "client %s is slow, event '%s' dropped", cl.remote, ev.Slot)
			if h.dropped != nil {
				h.dropped.Inc()
			}
		}
	}
}

func (h *Hub) register(remote string) *client {
	cl := &client{remote: remote, events: make(chan api.SlotEvent, clientBufferSize)}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, ev := range api.CurrentSlotEvents(h.cache, h.engine) {
		cl.events <- ev
	}
	h.clients[cl] = struct{}{}
	if h.clientsGauge != nil {
		h.clientsGauge.Set(float64(len(h.clients)))
	}
	return cl
}

func (h *Hub) unregister(cl *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	delete(h.clients, cl)
	if h.clientsGauge != nil {
		h.clientsGauge.Set(float64(len(h.clients)))
	}
}

// NumClients returns number of connected clients
func (h *Hub) NumClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams slot events as JSON text messages
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log().Warnf("[streaming] failed to upgrade to websocket connection: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	cl := h.register(r.RemoteAddr)
	defer h.unregister(cl)
	h.Infof1("[streaming] web socket client connected. Remote = %s", r.RemoteAddr)

	// the client sends nothing. Reading detects close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			h.Infof1("[streaming] web socket client disconnected. Remote = %s", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case ev := <-cl.events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = conn.WriteJSON(ev); err != nil {
				h.Infof1("[streaming] web socket client disconnected. Remote = %s: %v", r.RemoteAddr, err)
				return
			}
		case <-ping.C:
			if err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
