// Package restkvtest serves the REST protocol in tests by proxying every
// command to an in-process miniredis.
package restkvtest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

type Server struct {
	*httptest.Server
	Redis *miniredis.Miniredis
	Token string
}

// New starts a server accepting token; both it and miniredis are closed
// when t finishes.
func New(t testing.TB, token string) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
		var cmd []string
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || len(cmd) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "ERR invalid command"})
			return
		}
		args := make([]any, len(cmd))
		for i, c := range cmd {
			args[i] = c
		}
		res, err := rdb.Do(r.Context(), args...).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			writeJSON(w, http.StatusOK, map[string]any{"result": nil})
		case err != nil:
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"result": res})
		}
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Server{Server: srv, Redis: mr, Token: token}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
