package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/circle/internal/adapters/http/view"
	"github.com/okian/circle/internal/domain/model"
)

// ScoresHandler serves the score history and one-shot scoring.
type ScoresHandler struct {
	deps Dependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandleGetScores handles GET /api/scores requests.
func (h *ScoresHandler) HandleGetScores(w http.ResponseWriter, r *http.Request) {
	hist := h.deps.History(r.Context(), SessionID(r.Context()))
	writeJSON(w, http.StatusOK, scoresResponse{Scores: hist, Display: Display(hist)})
}

// HandleGetFragment handles GET /api/scores/fragment requests with the
// rendered score panel.
func (h *ScoresHandler) HandleGetFragment(w http.ResponseWriter, r *http.Request) {
	hist := h.deps.History(r.Context(), SessionID(r.Context()))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.Scoreboard(hist).Render(r.Context(), w); err != nil {
		http.Error(w, "failed to render", http.StatusInternalServerError)
	}
}

// HandlePostSurface handles POST /api/surface requests.
func (h *ScoresHandler) HandlePostSurface(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_surface"
	var req surfaceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	center, err := h.deps.Resize(r.Context(), SessionID(r.Context()), model.Surface(req))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, centerResponse{Center: center})
}

// HandlePostScore handles POST /api/score requests.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	var req scoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, wrapKind(op, ErrBadRequest, err))
		return
	}
	out, err := h.deps.Submit(r.Context(), SessionID(r.Context()), req.GestureID, model.Path(req.Points))
	if err != nil {
		writeFailure(w, err)
		return
	}

	resp := scoreResponse{Scores: out.History, Display: Display(out.History), Duplicate: out.Duplicate}
	if !out.Duplicate {
		score := out.Score
		resp.Score = &score
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
