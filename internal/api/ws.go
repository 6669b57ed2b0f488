package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"store-sentinel/internal/models"
)

const (
	maxFeedConnections = 32
	feedQueueSize      = 16
	feedWriteTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Feed pushes every emitted alert to all connected websocket clients. Each
// connection gets its own send queue and writer goroutine, so a slow client
// never blocks the alert path; a client that falls feedQueueSize alerts
// behind is dropped.
type Feed struct {
	mutex       sync.Mutex
	connections map[*websocket.Conn]chan models.AlertEvent
	logger      *logrus.Logger
}

func NewFeed(logger *logrus.Logger) *Feed {
	return &Feed{
		connections: make(map[*websocket.Conn]chan models.AlertEvent),
		logger:      logger,
	}
}

// Serve upgrades the request and holds the connection open until the client
// goes away. Client frames are read and discarded.
func (f *Feed) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Errorf("Websocket upgrade failed: %v", err)
		return
	}
	queue := f.add(conn)
	if queue == nil {
		conn.Close()
		return
	}
	go f.write(conn, queue)
	defer f.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast queues the alert on every connection without blocking. Clients
// whose queue is full are dropped.
func (f *Feed) Broadcast(ev models.AlertEvent) {
	f.mutex.Lock()
	var slow []*websocket.Conn
	for conn, queue := range f.connections {
		select {
		case queue <- ev:
		default:
			slow = append(slow, conn)
		}
	}
	f.mutex.Unlock()

	for _, conn := range slow {
		f.logger.Warnf("Feed client cannot keep up, dropping connection")
		f.remove(conn)
	}
}

// Close terminates all live connections.
func (f *Feed) Close() {
	f.mutex.Lock()
	conns := make([]*websocket.Conn, 0, len(f.connections))
	for conn := range f.connections {
		conns = append(conns, conn)
	}
	f.mutex.Unlock()
	for _, conn := range conns {
		f.remove(conn)
	}
}

func (f *Feed) write(conn *websocket.Conn, queue <-chan models.AlertEvent) {
	for ev := range queue {
		conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			f.logger.Warnf("Websocket write failed, dropping connection: %v", err)
			f.remove(conn)
			return
		}
	}
}

func (f *Feed) add(conn *websocket.Conn) chan models.AlertEvent {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.connections) >= maxFeedConnections {
		f.logger.Warnf("Max feed connections reached, rejecting client")
		return nil
	}
	queue := make(chan models.AlertEvent, feedQueueSize)
	f.connections[conn] = queue
	f.logger.Infof("Feed client connected (total: %d)", len(f.connections))
	return queue
}

// remove is idempotent; the reader, the writer and Broadcast may all race to
// drop the same connection.
func (f *Feed) remove(conn *websocket.Conn) {
	f.mutex.Lock()
	queue, ok := f.connections[conn]
	if ok {
		delete(f.connections, conn)
		close(queue)
	}
	remaining := len(f.connections)
	f.mutex.Unlock()

	conn.Close()
	if ok {
		f.logger.Infof("Feed client disconnected (remaining: %d)", remaining)
	}
}
