package gateway

import (
	"encoding/json"
	"log"
	"net/http"

	"warrant-ledgerv1/internal/ledger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the WS endpoint and the REST surface on mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn)
	})

	// REST: login against the fixed credential table
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "method not allowed"})
			return
		}

		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "帳號或密碼不能為空"})
			return
		}

		if hub.creds == nil || !hub.creds.Verify(req.Username, req.Password) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "帳號或密碼錯誤"})
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "username": req.Username})
	})

	// REST: aggregated leaderboard over a point-in-time snapshot
	mux.HandleFunc("/api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		rows := ledger.Leaderboard(hub.store.Snapshot())
		if err := json.NewEncoder(w).Encode(rows); err != nil {
			log.Printf("[gateway] leaderboard encode error: %v", err)
		}
	})
}
