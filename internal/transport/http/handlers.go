package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ascendly-scoring/internal/app"
	"go.uber.org/zap"
)

// Routes mounts the quiz socket, the leaderboard and results endpoints and a health probe.
func Routes(mux *http.ServeMux, service *app.QuizService, quizzes app.QuizRepository, log *zap.Logger, boardSize int) {
	ws := NewWSHandler(service, quizzes, log, boardSize)
	mux.HandleFunc("/ws", ws.ServeWS)
	mux.HandleFunc("/leaderboard", leaderboardHandler(service, boardSize))
	mux.HandleFunc("/results", resultsHandler(service))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// leaderboardHandler serves GET /leaderboard?class=&limit=.
func leaderboardHandler(service *app.QuizService, boardSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		class := r.URL.Query().Get("class")
		if class == "" {
			http.Error(w, "missing class", http.StatusBadRequest)
			return
		}
		limit := boardSize
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		board, err := service.Leaderboard(r.Context(), class, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, board)
	}
}

// resultsHandler serves GET /results?accountId=.
func resultsHandler(service *app.QuizService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := r.URL.Query().Get("accountId")
		if accountID == "" {
			http.Error(w, "missing accountId", http.StatusBadRequest)
			return
		}
		results, err := service.Results(r.Context(), accountID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, results)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
