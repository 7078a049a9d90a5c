package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestServer поднимает фейковый OTP-сервис с одной сессией sess-1 для alice.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /otp/request", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["email"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /otp/verify", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["code"] != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(Session{ID: "sess-1", Email: req["email"]})
	})
	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "sess-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(Session{ID: "sess-1", Email: "alice@example.com"})
	})
	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "sess-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRequestCode(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, nil, testLogger())

	if err := c.RequestCode(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RequestCode() ошибка: %v", err)
	}
}

func TestVerifyCode(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, nil, testLogger())
	ctx := context.Background()

	// Верный код
	sess, err := c.VerifyCode(ctx, "alice@example.com", "123456")
	if err != nil {
		t.Fatalf("VerifyCode() ошибка: %v", err)
	}
	if sess.ID != "sess-1" || sess.Email != "alice@example.com" {
		t.Errorf("Session = %+v, хотели sess-1/alice@example.com", sess)
	}

	// Неверный код
	_, err = c.VerifyCode(ctx, "alice@example.com", "000000")
	if !errors.Is(err, ErrInvalidCode) {
		t.Errorf("Для неверного кода ожидали ErrInvalidCode, получили: %v", err)
	}
}

func TestGetSession(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, nil, testLogger())
	ctx := context.Background()

	sess, err := c.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() ошибка: %v", err)
	}
	if sess.Email != "alice@example.com" {
		t.Errorf("Email = %q, хотели %q", sess.Email, "alice@example.com")
	}

	_, err = c.GetSession(ctx, "unknown")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Для неизвестной сессии ожидали ErrSessionNotFound, получили: %v", err)
	}
}

func TestSignOut(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, nil, testLogger())
	ctx := context.Background()

	if err := c.SignOut(ctx, "sess-1"); err != nil {
		t.Fatalf("SignOut() ошибка: %v", err)
	}

	// Отзыв отсутствующей сессии — не ошибка
	if err := c.SignOut(ctx, "unknown"); err != nil {
		t.Errorf("SignOut() отсутствующей сессии: %v", err)
	}
}
