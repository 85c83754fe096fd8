package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnManager tracks open WebSocket connections so shutdown can close them.
type ConnManager struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewConnManager creates a new ConnManager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		conns: make(map[string]*websocket.Conn),
	}
}

// Add registers conn and returns the id to Remove it with.
func (cm *ConnManager) Add(conn *websocket.Conn) string {
	id := uuid.New().String()
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conns[id] = conn
	return id
}

// Remove forgets a connection. It does not close it.
func (cm *ConnManager) Remove(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.conns, id)
}

// Len reports how many connections are open.
func (cm *ConnManager) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

// CloseAll sends a going-away close frame to every connection and closes it.
func (cm *ConnManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for id, conn := range cm.conns {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		delete(cm.conns, id)
	}
}
