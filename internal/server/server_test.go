package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedeck/internal/shared"
)

func TestChain(t *testing.T) {
	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}), mark("first"), mark("second"))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected order: %v", order)
		}
	})

	t.Run("no middleware", func(t *testing.T) {
		called := false
		h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if !called {
			t.Error("expected the handler to run")
		}
	})
}

func TestMux(t *testing.T) {
	logger := shared.NewLogger(io.Discard)

	t.Run("method mismatch", func(t *testing.T) {
		mux := newMux(NewCallbackHandler("s"), logger)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, CallbackPath, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("unknown path", func(t *testing.T) {
		mux := newMux(NewCallbackHandler("s"), logger)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("callback is not cacheable", func(t *testing.T) {
		mux := newMux(NewCallbackHandler("s"), logger)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CallbackPath+"?state=s&token=t", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Header().Get("Cache-Control") != "no-store" {
			t.Errorf("expected no-store, got %q", rec.Header().Get("Cache-Control"))
		}
	})
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := shared.NewLogger(&buf)
	logger.SetLevel(log.DebugLevel)

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?token=secret", nil))

	out := buf.String()
	if !strings.Contains(out, "418") || !strings.Contains(out, "/callback") {
		t.Errorf("log line missing status or path: %s", out)
	}
	if strings.Contains(out, "secret") {
		t.Error("query string must not be logged")
	}
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantToken  string
		wantErr    error
	}{
		{
			name:       "valid callback",
			query:      "?state=abc&token=tok-1",
			wantStatus: http.StatusOK,
			wantToken:  "tok-1",
		},
		{
			name:       "wrong state",
			query:      "?state=evil&token=tok-1",
			wantStatus: http.StatusBadRequest,
			wantErr:    shared.ErrAuthFailed,
		},
		{
			name:       "provider error",
			query:      "?state=abc&error=access_denied&error_description=user+cancelled",
			wantStatus: http.StatusBadRequest,
			wantErr:    shared.ErrAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCallbackHandler("abc")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			result := <-h.Result()
			if tt.wantErr != nil {
				if !errors.Is(result.Error(), tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, result.Error())
				}
				return
			}
			if result.Error() != nil {
				t.Fatalf("unexpected error: %v", result.Error())
			}
			if result.Token != tt.wantToken {
				t.Errorf("expected token %q, got %q", tt.wantToken, result.Token)
			}
		})
	}

	t.Run("only the first callback counts", func(t *testing.T) {
		h := NewCallbackHandler("abc")
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=abc&token=one", nil))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=abc&token=two", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for replay, got %d", rec.Code)
		}

		result := <-h.Result()
		if result.Token != "one" {
			t.Errorf("expected first token, got %q", result.Token)
		}
		if _, ok := <-h.Result(); ok {
			t.Error("result channel should be closed after one result")
		}
	})
}

func TestCallbackServer(t *testing.T) {
	t.Run("receives token", func(t *testing.T) {
		srv := NewCallbackServer("127.0.0.1:0", "state-1", nil)
		if err := srv.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer srv.Shutdown()

		if !strings.HasPrefix(srv.CallbackURL(), "http://127.0.0.1:") || strings.HasSuffix(srv.Addr(), ":0") {
			t.Errorf("unexpected callback url %s", srv.CallbackURL())
		}

		go func() {
			resp, err := http.Get(srv.CallbackURL() + "?state=state-1&token=tok-xyz")
			if err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}()

		token, err := srv.Wait(context.Background(), 2*time.Second)
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		if token != "tok-xyz" {
			t.Errorf("expected tok-xyz, got %q", token)
		}
	})

	t.Run("times out", func(t *testing.T) {
		srv := NewCallbackServer("127.0.0.1:0", "state-1", nil)
		if err := srv.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer srv.Shutdown()

		_, err := srv.Wait(context.Background(), 20*time.Millisecond)
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		srv := NewCallbackServer("127.0.0.1:0", "state-1", nil)
		if err := srv.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer srv.Shutdown()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := srv.Wait(ctx, time.Second); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("address in use", func(t *testing.T) {
		first := NewCallbackServer("127.0.0.1:0", "a", nil)
		if err := first.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer first.Shutdown()

		second := NewCallbackServer(first.Addr(), "b", nil)
		if err := second.Start(); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}
