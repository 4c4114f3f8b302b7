package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gorilla/mux"

	"github.com/p-n-ai/curriculum-ai/internal/tutor"
)

// ChatRequest is one chat turn, over HTTP or WebSocket.
type ChatRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

func (s *server) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, _ := IdentityFrom(r.Context())
	answer, err := s.tutor.Ask(r.Context(), tutor.Question{
		LessonID: mux.Vars(r)["id"],
		UserID:   id.UserID,
		Text:     req.Text,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, answer)
}

func (s *server) chatHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	conv, err := s.tutor.History(r.Context(), id.UserID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, conv)
}

// chatWebSocket serves tutor turns over a WebSocket. Each inbound
// ChatRequest gets one tutor.Answer or an {"error": "..."} frame.
func (s *server) chatWebSocket(w http.ResponseWriter, r *http.Request) {
	lessonID := mux.Vars(r)["id"]
	id, _ := IdentityFrom(r.Context())

	// Resolve the lesson before upgrading so a bad id is a plain 404.
	if _, err := s.lessons.GetLesson(r.Context(), lessonID); err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			s.logSocketClose(lessonID, err)
			return
		}

		var reply any
		if err := s.validate.Struct(req); err != nil {
			reply = map[string]string{"error": "text is required"}
		} else if answer, err := s.tutor.Ask(ctx, tutor.Question{LessonID: lessonID, UserID: id.UserID, Text: req.Text}); err != nil {
			reply = map[string]string{"error": err.Error()}
		} else {
			reply = answer
		}

		if err := wsjson.Write(ctx, conn, reply); err != nil {
			s.logSocketClose(lessonID, err)
			return
		}
	}
}

func (s *server) logSocketClose(lessonID string, err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
		s.log.Debug("chat socket closed", "lesson_id", lessonID)
		return
	}
	s.log.Warn("chat socket error", "lesson_id", lessonID, "error", err)
}
