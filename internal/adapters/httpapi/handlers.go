package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/delphibot/internal/analysis"
	"github.com/alejandrodnm/delphibot/internal/domain"
)

// payload es el cuerpo JSON de una respuesta; writeJSON añade fetched_at.
type payload map[string]any

func writeJSON(w http.ResponseWriter, status int, body payload) {
	if _, ok := body["fetched_at"]; !ok {
		body["fetched_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("encode response failed", "err", err)
	}
}

// writeError registra el detalle y devuelve un 500 genérico.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed",
		"request_id", requestIDFrom(r.Context()),
		"path", r.URL.Path,
		"err", err,
	)
	writeJSON(w, http.StatusInternalServerError, payload{"error": "internal server error"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, payload{"ok": true})
}

func (s *Server) handleLiveMarket(w http.ResponseWriter, r *http.Request) {
	live, err := s.backend.LiveMarket(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload{
		"market_id":       live.MarketID,
		"market_name":     live.MarketName,
		"status":          live.Status,
		"is_live":         live.IsLive(),
		"entry_map":       entryMapJSON(live.Entries),
		"entry_count":     len(live.Entries),
		"is_known_market": live.IsKnown,
	})
}

func (s *Server) handleEntryMap(w http.ResponseWriter, r *http.Request) {
	view, err := s.backend.EntryMap(r.Context(), r.URL.Query().Get("market_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload{
		"market_id":   view.MarketID,
		"entry_count": len(view.Entries),
		"map":         entryMapJSON(view.Entries),
		"map_source":  view.Source,
	})
}

// handleChart devuelve el chart del mercado. Si Delphi falla, market_chart va a null
// con un 200: el frontend sigue pintando el resto.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = "auto"
	}

	view, err := s.backend.EntryMap(r.Context(), q.Get("market_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := payload{
		"market_id":    view.MarketID,
		"timeframe":    timeframe,
		"market_chart": nil,
		"entry_map":    entryMapJSON(view.Entries),
	}
	chart, err := s.backend.Chart(r.Context(), view.MarketID, timeframe)
	if err != nil {
		slog.Debug("chart unavailable", "market_id", view.MarketID, "err", err)
		body["error"] = "chart unavailable"
	} else {
		body["market_chart"] = chart.Raw
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleHumanBelief(w http.ResponseWriter, r *http.Request) {
	hb, err := s.backend.HumanBelief(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var predicted any
	if hb.PredictedWinner != "" {
		predicted = hb.PredictedWinner
	}
	writeJSON(w, http.StatusOK, payload{
		"market_id":        hb.MarketID,
		"market_name":      hb.MarketName,
		"status":           hb.Status,
		"model_names":      hb.ModelNames,
		"raw":              hb.Raw,
		"beliefs":          hb.Beliefs,
		"predicted_winner": predicted,
		"top_belief":       hb.TopBelief,
		"max_eval_count":   hb.MaxEvalCount,
		"rankings":         hb.Rankings,
		"signals":          hb.Signals,
		"failed_models":    hb.FailedModels,
		"actual_winner":    hb.Winner.Winner,
		"winner_source":    hb.Winner.Source,
		"computed_at":      hb.ComputedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	report, err := s.backend.Historical(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historicalJSON(report))
}

func historicalJSON(r analysis.Report) payload {
	markets := r.Markets
	if markets == nil {
		markets = []analysis.MarketAnalysis{}
	}
	return payload{
		"markets":            markets,
		"winRate":            r.WinRate,
		"totalMarkets":       r.TotalMarkets,
		"correctPredictions": r.CorrectPredictions,
	}
}

// entryMapJSON serializa el entry map con keys string ("0", "1", ...), nunca null.
func entryMapJSON(m domain.EntryMap) map[int]string {
	if m == nil {
		return map[int]string{}
	}
	return m
}
