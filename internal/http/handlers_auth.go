package http

import (
	"net/http"
	"strings"

	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

type sessionBody struct {
	Username string `json:"username"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in services.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.ledger.Signup(r.Context(), in)
	writeResult(w, r, http.StatusCreated, sessionBody{Username: strings.TrimSpace(in.Username)}, err)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in services.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.ledger.Login(r.Context(), in)
	if err != nil && !services.IsWarning(err) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Login failed",
			applog.FieldClientIP, s.detector.ClientIP(r))
		writeError(w, r, err)
		return
	}
	writeResult(w, r, http.StatusOK, sessionBody{Username: strings.TrimSpace(in.Username)}, err)
}

func (s *Server) handleBiometricLogin(w http.ResponseWriter, r *http.Request) {
	var in sessionBody
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.ledger.BiometricLogin(r.Context(), in.Username)
	if err != nil && !services.IsWarning(err) {
		writeError(w, r, err)
		return
	}
	writeResult(w, r, http.StatusOK, sessionBody{Username: strings.TrimSpace(in.Username)}, err)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.Logout(r.Context())
	writeResult(w, r, http.StatusOK, nil, err)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in services.ChangePasswordInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.ledger.ChangePassword(r.Context(), in)
	writeResult(w, r, http.StatusOK, nil, err)
}

// handleSession reports who is logged in.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	user := s.ledger.ActiveUser()
	if user == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "no active user"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: sessionBody{Username: user}})
}
