package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apexion-ai/wikichat/internal/agent"
	"github.com/apexion-ai/wikichat/internal/session"
)

type messageJSON struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Time      string    `json:"time"`
}

type sessionJSON struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	Current   bool          `json:"current"`
	Messages  []messageJSON `json:"messages"`
}

type sourceJSON struct {
	PageID int    `json:"page_id"`
	Title  string `json:"title"`
}

type warningJSON struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type answerJSON struct {
	RequestID string        `json:"request_id"`
	Text      string        `json:"text"`
	Context   string        `json:"context,omitempty"`
	Source    *sourceJSON   `json:"source,omitempty"`
	Warnings  []warningJSON `json:"warnings"`
}

type exchangeJSON struct {
	SessionID string      `json:"session_id"`
	Question  messageJSON `json:"question"`
	Answer    messageJSON `json:"answer"`
	answerJSON
}

func toMessageJSON(m session.Message) messageJSON {
	return messageJSON{Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp, Time: m.DisplayTime()}
}

func toWarningsJSON(ws []agent.Warning) []warningJSON {
	out := make([]warningJSON, 0, len(ws))
	for _, w := range ws {
		out = append(out, warningJSON{Stage: string(w.Stage), Message: w.Err.Error()})
	}
	return out
}

func toAnswerJSON(r agent.Result) answerJSON {
	a := answerJSON{
		RequestID: r.RequestID,
		Text:      r.Text,
		Context:   r.Context,
		Warnings:  toWarningsJSON(r.Warnings),
	}
	if r.Source != nil {
		a.Source = &sourceJSON{PageID: r.Source.PageID, Title: r.Source.Title}
	}
	return a
}

// persistWarnings turns a Manager error into warnings, or reports false
// when err is a hard failure.
func persistWarnings(err error) ([]warningJSON, bool) {
	if err == nil {
		return []warningJSON{}, true
	}
	if errors.Is(err, session.ErrNotPersisted) {
		return []warningJSON{{Stage: string(agent.StagePersist), Message: err.Error()}}, true
	}
	return nil, false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	m := s.chat.Sessions()
	JSON(w, http.StatusOK, map[string]any{
		"current":  m.Current(),
		"capacity": m.Capacity(),
		"sessions": m.List(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.chat.Sessions().Create()
	warnings, ok := persistWarnings(err)
	if !ok {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"id": id, "warnings": warnings})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	m := s.chat.Sessions()
	id := chi.URLParam(r, "id")
	sess, ok := m.Get(id)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	out := sessionJSON{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		Current:   m.Current() == sess.ID,
		Messages:  make([]messageJSON, 0, len(sess.Messages)),
	}
	for _, msg := range sess.Messages {
		out.Messages = append(out.Messages, toMessageJSON(msg))
	}
	JSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.chat.Sessions().Delete(chi.URLParam(r, "id"))
	if _, ok := persistWarnings(err); !ok {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("delete not persisted")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.chat.Sessions().Select(id)
	if errors.Is(err, session.ErrNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	warnings, ok := persistWarnings(err)
	if !ok {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]any{"current": id, "warnings": warnings})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	ex, err := s.chat.Ask(r.Context(), id, req.Content)
	switch {
	case errors.Is(err, agent.ErrEmptyQuestion):
		Error(w, http.StatusBadRequest, "content must not be empty")
		return
	case errors.Is(err, session.ErrNotFound):
		Error(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSON(w, http.StatusOK, exchangeJSON{
		SessionID:  ex.SessionID,
		Question:   toMessageJSON(ex.Question),
		Answer:     toMessageJSON(ex.Answer),
		answerJSON: toAnswerJSON(ex.Result),
	})
}

// handleAnswer answers a topic without touching any session.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		Error(w, http.StatusBadRequest, "topic must not be empty")
		return
	}
	JSON(w, http.StatusOK, toAnswerJSON(s.chat.Orchestrator().Answer(r.Context(), req.Topic)))
}
