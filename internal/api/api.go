// Package api exposes lessons, content generation and the tutor over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/p-n-ai/curriculum-ai/internal/generator"
	"github.com/p-n-ai/curriculum-ai/internal/lesson"
	"github.com/p-n-ai/curriculum-ai/internal/platform/logger"
	"github.com/p-n-ai/curriculum-ai/internal/tutor"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Options configures the router. Lessons, Generator and JWTSecret are required.
type Options struct {
	Lessons         lesson.Store
	Generator       *generator.Generator
	Tutor           *tutor.Engine // chat routes are omitted when nil
	JWTSecret       string
	Logger          *logger.Logger
	ReadinessChecks map[string]ReadinessCheck
}

type server struct {
	lessons   lesson.Store
	generator *generator.Generator
	tutor     *tutor.Engine
	secret    []byte
	log       *logger.Logger
	checks    map[string]ReadinessCheck
	validate  *requestValidator
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Lessons == nil || opts.Generator == nil {
		return nil, fmt.Errorf("api: lesson store and generator are required")
	}
	if opts.JWTSecret == "" {
		return nil, fmt.Errorf("api: JWT secret is required")
	}

	s := &server{
		lessons:   opts.Lessons,
		generator: opts.Generator,
		tutor:     opts.Tutor,
		secret:    []byte(opts.JWTSecret),
		log:       opts.Logger.With("component", "api"),
		checks:    opts.ReadinessChecks,
		validate:  newRequestValidator(),
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/lessons", s.requireRole(RoleTeacher, s.createLesson)).Methods(http.MethodPost)
	api.HandleFunc("/lessons/{id}", s.getLesson).Methods(http.MethodGet)
	api.HandleFunc("/lessons/{id}/generate", s.requireRole(RoleTeacher, s.generate)).Methods(http.MethodPost)
	api.HandleFunc("/lessons/{id}/generate/async", s.requireRole(RoleTeacher, s.generateAsync)).Methods(http.MethodPost)
	api.HandleFunc("/lessons/{id}/content", s.getContent).Methods(http.MethodGet)
	api.HandleFunc("/lessons/{id}/quiz.xlsx", s.exportQuiz).Methods(http.MethodGet)

	if s.tutor != nil {
		api.HandleFunc("/lessons/{id}/chat", s.chat).Methods(http.MethodPost)
		api.HandleFunc("/lessons/{id}/chat", s.chatHistory).Methods(http.MethodGet)
		api.HandleFunc("/lessons/{id}/chat/ws", s.chatWebSocket).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondWithError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r, nil
}
