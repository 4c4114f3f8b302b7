package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/p-n-ai/curriculum-ai/internal/platform/config"
	"github.com/p-n-ai/curriculum-ai/internal/platform/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Storage:    "memory",
		AI:         config.AIConfig{Ollama: config.OllamaConfig{Enabled: true, URL: "http://localhost:11434", Model: "llama3.1"}},
		Generation: config.GenerationConfig{RegenerateMode: "insert"},
		Auth:       config.AuthConfig{JWTSecret: "test-secret"},
	}
}

func TestHealthEndpoints(t *testing.T) {
	a, err := newApp(context.Background(), memoryConfig(), logger.Nop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			a.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestNewApp_ProtectedRoutes(t *testing.T) {
	a, err := newApp(context.Background(), memoryConfig(), logger.Nop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lessons/L1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestNewApp_BadPromptsPath(t *testing.T) {
	cfg := memoryConfig()
	cfg.Generation.PromptsPath = t.TempDir() + "/missing.yaml"
	if _, err := newApp(context.Background(), cfg, logger.Nop()); err == nil {
		t.Error("newApp() should fail when the prompts file is missing")
	}
}

func TestNewAIRouter(t *testing.T) {
	tests := []struct {
		name    string
		ai      config.AIConfig
		want    []string
		wantErr bool
	}{
		{name: "none", wantErr: true},
		{
			name: "fallback order",
			ai: config.AIConfig{
				OpenAI:     config.OpenAIConfig{APIKey: "sk", Model: "gpt-4o-mini"},
				Anthropic:  config.ProviderConfig{APIKey: "sk-ant", Model: "claude"},
				DeepSeek:   config.ProviderConfig{APIKey: "sk-ds", Model: "deepseek-chat"},
				OpenRouter: config.ProviderConfig{APIKey: "sk-or", Model: "openai/gpt-4o-mini"},
				Ollama:     config.OllamaConfig{Enabled: true, URL: "http://localhost:11434"},
			},
			want: []string{"openai", "anthropic", "deepseek", "openrouter", "ollama"},
		},
		{
			name: "ollama only",
			ai:   config.AIConfig{Ollama: config.OllamaConfig{Enabled: true, URL: "http://localhost:11434"}},
			want: []string{"ollama"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, err := newAIRouter(context.Background(), &config.Config{AI: tt.ai}, logger.Nop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("newAIRouter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := router.Providers(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Providers() = %v, want %v", got, tt.want)
			}
		})
	}
}
