package ai_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/p-n-ai/curriculum-ai/internal/ai"
)

func hi() ai.CompletionRequest {
	return ai.CompletionRequest{Messages: []ai.Message{{Role: ai.RoleUser, Content: "hi"}}}
}

func TestRouter_SingleProvider(t *testing.T) {
	router := ai.NewRouter(nil)
	router.Register("openai", ai.NewMockProvider("Hello!"))

	resp, err := router.Complete(context.Background(), hi())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello!")
	}
	if resp.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", resp.Provider)
	}
}

func TestRouter_Fallback(t *testing.T) {
	router := ai.NewRouter(nil)
	failing := &ai.MockProvider{Err: errors.New("rate limited")}
	router.Register("openai", failing)
	router.Register("ollama", ai.NewMockProvider("Fallback response"))

	resp, err := router.Complete(context.Background(), hi())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Fallback response" {
		t.Errorf("Content = %q, want %q", resp.Content, "Fallback response")
	}
	if failing.Calls() != 1 {
		t.Errorf("failing provider calls = %d, want 1", failing.Calls())
	}
}

func TestRouter_AllProvidersFail(t *testing.T) {
	router := ai.NewRouter(nil)
	errLimited := errors.New("fail 1")
	router.Register("openai", &ai.MockProvider{Err: errLimited})
	router.Register("ollama", &ai.MockProvider{Err: errors.New("fail 2")})

	_, err := router.Complete(context.Background(), hi())
	if err == nil {
		t.Fatal("Complete() should return error when all providers fail")
	}
	if !errors.Is(err, errLimited) {
		t.Errorf("error %v should wrap each provider error", err)
	}
	if !strings.Contains(err.Error(), "ollama: fail 2") {
		t.Errorf("error %q should name the failing provider", err)
	}
}

func TestRouter_NoProviders(t *testing.T) {
	router := ai.NewRouter(nil)
	if _, err := router.Complete(context.Background(), hi()); !errors.Is(err, ai.ErrNoProvider) {
		t.Fatalf("Complete() error = %v, want ErrNoProvider", err)
	}
}

func TestRouter_CancelledContextStops(t *testing.T) {
	router := ai.NewRouter(nil)
	first := ai.NewMockProvider("first")
	router.Register("first", first)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := router.Complete(ctx, hi()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Complete() error = %v, want context.Canceled", err)
	}
	if first.Calls() != 0 {
		t.Errorf("provider called %d times after cancellation", first.Calls())
	}
}

func TestRouter_RegisterOrder(t *testing.T) {
	router := ai.NewRouter(nil)
	if router.HasProvider() {
		t.Error("HasProvider() should be false with no providers")
	}

	router.Register("first", ai.NewMockProvider("first"))
	router.Register("second", ai.NewMockProvider("second"))
	router.Register("first", ai.NewMockProvider("first again"))

	if got := strings.Join(router.Providers(), ","); got != "first,second" {
		t.Errorf("Providers() = %q, want first,second", got)
	}

	resp, err := router.Complete(context.Background(), hi())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "first again" {
		t.Errorf("Content = %q, want %q (re-registering keeps position)", resp.Content, "first again")
	}
}
