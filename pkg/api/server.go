package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Server is the read-only observer surface: REST endpoints and a WebSocket
// stream over published simulation frames. It never touches the simulation
// directly; the runner pushes an Update after each cycle and handlers serve
// whatever frame was published last.
type Server struct {
	router *mux.Router
	hub    *Hub

	mu     sync.RWMutex
	latest Update
	ready  bool
}

// NewServer creates the observer server.
func NewServer() *Server {
	s := &Server{
		router: mux.NewRouter(),
		hub:    NewHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Macro endpoints
	api.HandleFunc("/macro", s.handleGetMacro).Methods("GET")
	api.HandleFunc("/bank", s.handleGetBank).Methods("GET")
	api.HandleFunc("/audit/findings", s.handleGetFindings).Methods("GET")

	// Market endpoints
	api.HandleFunc("/items", s.handleGetItems).Methods("GET")
	api.HandleFunc("/items/{item}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/items/{item}/candles", s.handleGetCandles).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler exposes the routed handler, mainly for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the listener fails. Blocking; run it on its own
// goroutine next to the scheduler loop.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	handler := c.Handler(s.router)

	log.Printf("[api] observer listening on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// Push publishes a fresh frame and fans it out to subscribed WebSocket
// clients. Called from the scheduler thread between cycles.
func (s *Server) Push(u Update) {
	s.mu.Lock()
	s.latest = u
	s.ready = true
	s.mu.Unlock()

	s.hub.BroadcastToChannel("macro", MacroUpdate{Type: "macro", Macro: macroInfo(u.Macro)})
	for _, depth := range u.Books {
		s.hub.BroadcastToChannel("book:"+depth.Item, BookUpdate{Type: "book", Book: depth})
	}
}

func (s *Server) frame() (Update, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.ready
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMacro(w http.ResponseWriter, r *http.Request) {
	u, ok := s.frame()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no frame published yet", "")
		return
	}
	respondJSON(w, macroInfo(u.Macro))
}

func (s *Server) handleGetBank(w http.ResponseWriter, r *http.Request) {
	u, ok := s.frame()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no frame published yet", "")
		return
	}
	days := make([]BankDay, len(u.Bank))
	for i, h := range u.Bank {
		days[i] = BankDay{
			Day:         h.Day,
			LoanRate:    h.LoanRate,
			DepositRate: h.DepositRate,
			Reserves:    h.Reserves,
			Loans:       h.Loans,
			Deposits:    h.Deposits,
		}
	}
	respondJSON(w, days)
}

func (s *Server) handleGetFindings(w http.ResponseWriter, r *http.Request) {
	u, ok := s.frame()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no frame published yet", "")
		return
	}
	findings := make([]FindingInfo, len(u.Findings))
	for i, f := range u.Findings {
		findings[i] = FindingInfo{
			Tick:     f.Tick,
			Severity: f.Severity.String(),
			Code:     f.Code,
			Detail:   f.Detail,
		}
	}
	respondJSON(w, findings)
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	u, ok := s.frame()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no frame published yet", "")
		return
	}
	respondJSON(w, u.Books)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	u, ok := s.frame()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no frame published yet", "")
		return
	}
	item := mux.Vars(r)["item"]
	for _, depth := range u.Books {
		if depth.Item == item {
			respondJSON(w, depth)
			return
		}
	}
	respondError(w, http.StatusNotFound, "unknown item", item)
}

func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	u, ok := s.frame()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no frame published yet", "")
		return
	}
	item := mux.Vars(r)["item"]
	candles, found := u.Candles[item]
	if !found {
		respondError(w, http.StatusNotFound, "unknown item", item)
		return
	}
	out := make([]CandleInfo, len(candles))
	for i, c := range candles {
		out[i] = CandleInfo{Day: c.Day, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
	}
	respondJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
