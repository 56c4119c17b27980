package server

import (
	"encoding/json"
	"net/http"

	"dkp-ledger/internal/domain"
	"dkp-ledger/internal/ledger"
	"dkp-ledger/internal/service"

	"github.com/rs/zerolog"
)

// LeaderboardServer is the presentation edge: sorted ledger rows as
// JSON plus the manual recompute trigger. Rendering and routing beyond
// this thin surface live elsewhere.
type LeaderboardServer struct {
	svc    *service.LeaderboardService
	logger zerolog.Logger
}

func NewLeaderboardServer(svc *service.LeaderboardService, logger zerolog.Logger) *LeaderboardServer {
	return &LeaderboardServer{svc: svc, logger: logger}
}

func (s *LeaderboardServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/api/recompute", s.handleRecompute)
	mux.HandleFunc("/api/health", s.handleHealth)
	return mux
}

type leaderboardRow struct {
	Key         string  `json:"key"`
	DisplayName string  `json:"display_name"`
	Class       string  `json:"class,omitempty"`
	Level       int     `json:"level,omitempty"`
	Earned      float64 `json:"earned"`
	Spent       float64 `json:"spent"`
	Balance     float64 `json:"balance"`
	Earned30d   float64 `json:"earned_30d"`
	Earned60d   float64 `json:"earned_60d"`
	Window30d   string  `json:"window_30d"`
	Window60d   string  `json:"window_60d"`
}

type leaderboardResponse struct {
	View string           `json:"view"`
	Rows []leaderboardRow `json:"rows"`
}

func (s *LeaderboardServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	view := r.URL.Query().Get("view")
	if view == "" {
		view = "character"
	}
	includeHidden := r.URL.Query().Get("all") == "true"

	switch view {
	case "character":
		rows, periods, err := s.svc.CharacterLeaderboard(r.Context(), includeHidden)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]leaderboardRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, characterRow(row, periods))
		}
		writeJSON(w, http.StatusOK, leaderboardResponse{View: view, Rows: out})

	case "account":
		rows, periods, err := s.svc.AccountLeaderboard(r.Context(), includeHidden)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]leaderboardRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, accountRow(row, periods))
		}
		writeJSON(w, http.StatusOK, leaderboardResponse{View: view, Rows: out})

	default:
		writeError(w, http.StatusBadRequest, "unknown view: "+view)
	}
}

func (s *LeaderboardServer) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	materialize := r.URL.Query().Get("materialize") == "true"
	snap, err := s.svc.Recompute(r.Context(), materialize)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recomputed": true,
		"fetched_at": snap.FetchedAt,
		"characters": len(snap.Characters),
		"accounts":   len(snap.Accounts),
	})
}

func (s *LeaderboardServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *LeaderboardServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusBadGateway, err.Error())
}

func characterRow(row domain.LedgerRow, periods domain.PeriodTotals) leaderboardRow {
	return leaderboardRow{
		Key:         row.Key,
		DisplayName: row.Name,
		Class:       row.Class,
		Level:       row.Level,
		Earned:      row.Earned,
		Spent:       row.Spent,
		Balance:     row.Balance,
		Earned30d:   row.Earned30d,
		Earned60d:   row.Earned60d,
		Window30d:   ledger.Cell(row.Earned30d, periods.Days30),
		Window60d:   ledger.Cell(row.Earned60d, periods.Days60),
	}
}

func accountRow(row domain.AccountRow, periods domain.PeriodTotals) leaderboardRow {
	return leaderboardRow{
		Key:         row.AccountID,
		DisplayName: row.DisplayName,
		Earned:      row.Earned,
		Spent:       row.Spent,
		Balance:     row.Balance,
		Earned30d:   row.Earned30d,
		Earned60d:   row.Earned60d,
		Window30d:   ledger.Cell(row.Earned30d, periods.Days30),
		Window60d:   ledger.Cell(row.Earned60d, periods.Days60),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
