package main

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/floats"

	"lbmflow/lbm"
)

// FieldUpdate is the message broadcast to connected clients: a flow speed
// field plus summary statistics for the current tick.
type FieldUpdate struct {
	Type     string    `json:"type"`
	Tick     uint64    `json:"tick"`
	Nx       int       `json:"nx"`
	Ny       int       `json:"ny"`
	Speed    []float32 `json:"speed"`
	Mask     []uint8   `json:"mask"`
	RhoMin   float64   `json:"rhoMin"`
	RhoMax   float64   `json:"rhoMax"`
	SpeedMax float64   `json:"speedMax"`
	Omega    float32   `json:"omega"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// FieldServer streams field snapshots over websockets and accepts parameter
// changes from clients. Handlers never touch the domain directly: the GL
// backend is bound to the main thread, so incoming commands queue up and
// Drain applies them from the tick loop. Broadcast likewise runs on the tick
// loop and caches its snapshot for newly connected clients.
type FieldServer struct {
	nx, ny int
	addr   string
	omega  float32

	clients      map[*websocket.Conn]*sync.Mutex
	clientsMutex sync.RWMutex

	stateMutex sync.Mutex
	commands   []func(*lbm.Domain) error
	latest     *FieldUpdate
}

// NewFieldServer builds a server for an nx-by-ny domain.
func NewFieldServer(nx, ny int, addr string, omega float32) *FieldServer {
	return &FieldServer{
		nx:      nx,
		ny:      ny,
		addr:    addr,
		omega:   omega,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Start registers the handlers and serves until the process exits. Call it
// on its own goroutine.
func (s *FieldServer) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/", http.FileServer(http.Dir("web/")))

	fmt.Printf("Field server listening on http://localhost%s\n", s.addr)
	log.Fatal(http.ListenAndServe(s.addr, mux))
}

func (s *FieldServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}
	defer conn.Close()

	connMutex := &sync.Mutex{}
	s.clientsMutex.Lock()
	s.clients[conn] = connMutex
	s.clientsMutex.Unlock()
	defer func() {
		s.clientsMutex.Lock()
		delete(s.clients, conn)
		s.clientsMutex.Unlock()
	}()

	s.stateMutex.Lock()
	latest := s.latest
	s.stateMutex.Unlock()
	if latest != nil {
		connMutex.Lock()
		if err := conn.WriteJSON(latest); err != nil {
			log.Println("WebSocket write error:", err)
		}
		connMutex.Unlock()
	}

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			log.Println("WebSocket read error:", err)
			break
		}

		if omega, ok := msg["omega"].(float64); ok {
			s.enqueue(func(dom *lbm.Domain) error {
				if err := dom.SetRelaxationRate(float32(omega)); err != nil {
					return err
				}
				s.stateMutex.Lock()
				s.omega = float32(omega)
				s.stateMutex.Unlock()
				fmt.Printf("OMEGA CHANGE: %.3f\n", omega)
				return nil
			})
		}
		if v, ok := msg["inlet"].([]interface{}); ok && len(v) == 2 {
			ux, okx := v[0].(float64)
			uy, oky := v[1].(float64)
			if okx && oky {
				s.enqueue(func(dom *lbm.Domain) error {
					return dom.SetInletVelocity(float32(ux), float32(uy))
				})
			}
		}
		if reset, ok := msg["reset"].(bool); ok && reset {
			s.enqueue(func(dom *lbm.Domain) error {
				return dom.Reset()
			})
		}
	}
}

func (s *FieldServer) enqueue(cmd func(*lbm.Domain) error) {
	s.stateMutex.Lock()
	s.commands = append(s.commands, cmd)
	s.stateMutex.Unlock()
}

// Drain applies queued client commands. Call between ticks on the thread
// that owns the domain.
func (s *FieldServer) Drain(dom *lbm.Domain) {
	s.stateMutex.Lock()
	commands := s.commands
	s.commands = nil
	s.stateMutex.Unlock()

	for _, cmd := range commands {
		if err := cmd(dom); err != nil {
			log.Println("client command rejected:", err)
		}
	}
}

// Broadcast snapshots the field and sends it to every connected client.
// Disconnected clients are dropped from the set.
func (s *FieldServer) Broadcast(dom *lbm.Domain) {
	update, err := s.snapshot(dom)
	if err != nil {
		log.Println("snapshot failed:", err)
		return
	}
	s.stateMutex.Lock()
	s.latest = update
	s.stateMutex.Unlock()

	s.clientsMutex.RLock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(s.clients))
	for c, m := range s.clients {
		conns[c] = m
	}
	s.clientsMutex.RUnlock()

	for conn, mu := range conns {
		mu.Lock()
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		err := conn.WriteJSON(update)
		mu.Unlock()
		if err != nil {
			log.Println("WebSocket write error:", err)
			conn.Close()
			s.clientsMutex.Lock()
			delete(s.clients, conn)
			s.clientsMutex.Unlock()
		}
	}
}

// HasClients reports whether anyone is connected, letting the caller skip
// the readback when nobody is listening.
func (s *FieldServer) HasClients() bool {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients) > 0
}

func (s *FieldServer) snapshot(dom *lbm.Domain) (*FieldUpdate, error) {
	rho, ux, uy, _, err := dom.Macroscopic()
	if err != nil {
		return nil, err
	}
	mask := dom.Mask()

	cells := s.nx * s.ny
	speed := make([]float32, cells)
	speed64 := make([]float64, cells)
	rho64 := make([]float64, cells)
	for i := 0; i < cells; i++ {
		v := math.Hypot(float64(ux[i]), float64(uy[i]))
		speed[i] = float32(v)
		speed64[i] = v
		rho64[i] = float64(rho[i])
	}

	maskBytes := make([]uint8, cells)
	for i, k := range mask {
		maskBytes[i] = uint8(k)
	}

	s.stateMutex.Lock()
	omega := s.omega
	s.stateMutex.Unlock()

	return &FieldUpdate{
		Type:     "field",
		Tick:     dom.Tick(),
		Nx:       s.nx,
		Ny:       s.ny,
		Speed:    speed,
		Mask:     maskBytes,
		RhoMin:   floats.Min(rho64),
		RhoMax:   floats.Max(rho64),
		SpeedMax: floats.Max(speed64),
		Omega:    omega,
	}, nil
}
