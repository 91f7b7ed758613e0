package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/AreslotLLC/kuchikomi/internal/catalog"
	"github.com/AreslotLLC/kuchikomi/internal/services"
)

// Router wires the survey session flow and the review generation
// endpoint onto HTTP.
type Router struct {
	catalog  *catalog.Catalog
	sessions *services.SessionService
	reviews  *services.ReviewService
}

// NewRouter builds a router over the given catalog and collaborators.
// The session store lives inside the router process.
func NewRouter(cat *catalog.Catalog, dispatcher services.StorageDispatcher, generator services.ChatGenerator) *Router {
	reviews := services.NewReviewService(generator)
	sessions := services.NewSessionService(cat, newSessionStore(), dispatcher, reviews)
	return &Router{catalog: cat, sessions: sessions, reviews: reviews}
}

// Sessions exposes the session service so the caller can apply
// configuration (threshold, minimum loading duration).
func (rt *Router) Sessions() *services.SessionService { return rt.sessions }

// Register attaches all routes.
func (rt *Router) Register(r *mux.Router) {
	r.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/clients/{clientId}", rt.handleGetClient).Methods(http.MethodGet)
	r.HandleFunc("/api/clients/{clientId}/sessions", rt.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{sessionId}", rt.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{sessionId}/answers", rt.handleRecordAnswer).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{sessionId}/submit", rt.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{sessionId}/reset", rt.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/api/generate-review", rt.handleGenerateReview).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var inc *services.IncompleteError
	if errors.As(err, &inc) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "survey is incomplete",
			"missing": inc.Missing,
		})
		return
	}
	if se, ok := services.AsServiceError(err); ok {
		switch se.Code {
		case services.ErrorInvalid:
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": se.Message})
		case services.ErrorNotFound:
			writeJSON(w, http.StatusNotFound, map[string]any{"error": se.Message})
		case services.ErrorMissingCredential:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Configuration Error", "details": se.Message})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "AI Generation Failed", "details": se.Message})
		}
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

// questionView is the public shape of one question, with required and
// multiple flags resolved.
type questionView struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Label         string   `json:"label"`
	Options       []string `json:"options,omitempty"`
	MaxSelections int      `json:"max_selections,omitempty"`
	Multiple      bool     `json:"multiple"`
	Required      bool     `json:"required"`
}

func questionViews(qs []catalog.Question) []questionView {
	out := make([]questionView, 0, len(qs))
	for i := range qs {
		q := &qs[i]
		out = append(out, questionView{
			ID:            q.ID,
			Type:          string(q.Type),
			Label:         q.Label,
			Options:       q.Options,
			MaxSelections: q.MaxSelections,
			Multiple:      q.IsMultiple(),
			Required:      q.IsRequired(),
		})
	}
	return out
}

type sessionView struct {
	SessionID string                     `json:"session_id"`
	ClientID  string                     `json:"client_id"`
	Step      services.Step              `json:"step"`
	Answers   map[string]*services.Value `json:"answers"`
	Answered  int                        `json:"answered"`
	Total     int                        `json:"total"`
	Draft     *services.ReviewDraft      `json:"draft,omitempty"`
}

func viewSession(sess *services.Session) sessionView {
	answered, total := sess.Progress()
	v := sessionView{
		SessionID: sess.ID,
		ClientID:  sess.ClientID,
		Step:      sess.Step,
		Answers:   sess.Answers,
		Answered:  answered,
		Total:     total,
	}
	if sess.Step == services.StepReview {
		v.Draft = sess.Draft
	}
	return v
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": "kuchikomi API"})
}

// GET /api/clients/{clientId}
func (rt *Router) handleGetClient(w http.ResponseWriter, r *http.Request) {
	cl := rt.catalog.Get(mux.Vars(r)["clientId"])
	if cl == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "client not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           cl.ID,
		"name":         cl.Name,
		"theme":        cl.Theme,
		"posting_link": cl.PostingLink,
		"questions":    questionViews(catalog.SessionQuestions(cl)),
	})
}

// POST /api/clients/{clientId}/sessions
func (rt *Router) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := rt.sessions.CreateSession(mux.Vars(r)["clientId"])
	if err != nil {
		writeError(w, err)
		return
	}
	logrus.WithFields(logrus.Fields{"client": sess.ClientID, "session": sess.ID}).Info("session opened")
	writeJSON(w, http.StatusCreated, viewSession(sess))
}

// GET /api/sessions/{sessionId}
func (rt *Router) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := rt.sessions.GetSession(mux.Vars(r)["sessionId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess))
}

// POST /api/sessions/{sessionId}/answers
// { question_id: string, value: <shape per question type> }
func (rt *Router) handleRecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string          `json:"question_id"`
		Value      json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if req.QuestionID == "" || len(req.Value) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "question_id and value required"})
		return
	}
	sess, err := rt.sessions.RecordAnswer(mux.Vars(r)["sessionId"], req.QuestionID, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess))
}

// POST /api/sessions/{sessionId}/submit
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	result, err := rt.sessions.Submit(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		writeError(w, err)
		return
	}
	out := map[string]any{"step": result.Step}
	if result.Draft != nil {
		out["review_text"] = result.Draft.Text
		out["posting_link"] = result.Draft.PostingLink
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/sessions/{sessionId}/reset
func (rt *Router) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := rt.sessions.Reset(mux.Vars(r)["sessionId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess))
}

// POST /api/generate-review
// { clientName, answers: {label: value}, age?, gender? }
func (rt *Router) handleGenerateReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientName string         `json:"clientName"`
		Answers    map[string]any `json:"answers"`
		Age        string         `json:"age"`
		Gender     string         `json:"gender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request"})
		return
	}
	if req.ClientName == "" || len(req.Answers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request"})
		return
	}

	answers := make(map[string]string, len(req.Answers))
	for label, v := range req.Answers {
		answers[label] = renderAny(v)
	}

	text, err := rt.reviews.Generate(r.Context(), services.GenerateRequest{
		ClientName: req.ClientName,
		Answers:    answers,
		Age:        req.Age,
		Gender:     req.Gender,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviewText": text})
}

// renderAny flattens a free-form answer value into the string form
// used in the prompt: arrays joined with ", ", numbers without a
// trailing fraction, booleans in the survey's locale.
func renderAny(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "はい"
		}
		return "いいえ"
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, renderAny(e))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", t)
	}
}
