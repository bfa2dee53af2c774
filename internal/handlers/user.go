package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jason-s-yu/uno/internal/auth"
	"github.com/jason-s-yu/uno/internal/models"
)

type guestRequest struct {
	Name string `json:"name"`
}

type sessionResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token,omitempty"`
}

// GuestHandler creates an identity for a visitor and returns its token, also as the auth cookie.
// The JSON body {"name": "..."} is optional.
func GuestHandler(sessions *auth.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req guestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = "Guest"
		}
		if len(name) > 64 {
			name = name[:64]
		}

		u := auth.NewGuest(name)
		token, err := sessions.CreateJWT(u)
		if err != nil {
			http.Error(w, "failed to create token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     AuthCookie,
			Value:    token,
			HttpOnly: true,
			Path:     "/",
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(sessionResponse{User: u, Token: token})
	}
}

// MeHandler returns the user behind the request's token.
func MeHandler(sessions *auth.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := sessions.AuthenticateJWT(tokenFromRequest(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sessionResponse{User: u})
	}
}
