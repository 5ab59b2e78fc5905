package chattest

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// Account is the single user the fake REST backend knows.
const (
	AccountEmail    = "traveler@example.com"
	AccountPassword = "secret"
	AccountUserID   = 7
	AccountRole     = "customer"
)

type authState struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	refreshOK    bool
	generation   int
	refreshCalls int
}

func newAuthState(token string) *authState {
	if token == "" {
		token = "access-0"
	}
	return &authState{
		accessToken:  token,
		refreshToken: "refresh-0",
		refreshOK:    true,
	}
}

// ExpireAccessToken invalidates the current access token so the next
// authenticated call answers 401.
func (s *Server) ExpireAccessToken() {
	s.auth.mu.Lock()
	s.auth.accessToken = ""
	s.auth.mu.Unlock()
}

// FailRefresh makes every refresh attempt answer 401.
func (s *Server) FailRefresh() {
	s.auth.mu.Lock()
	s.auth.refreshOK = false
	s.auth.mu.Unlock()
}

// RefreshCalls returns the number of refresh requests served.
func (s *Server) RefreshCalls() int {
	s.auth.mu.Lock()
	defer s.auth.mu.Unlock()
	return s.auth.refreshCalls
}

// AccessToken returns the currently valid access token.
func (s *Server) AccessToken() string {
	s.auth.mu.Lock()
	defer s.auth.mu.Unlock()
	return s.auth.accessToken
}

type userBody struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (a *authState) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	if req.Email != AccountEmail || req.Password != AccountPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
		return
	}
	a.mu.Lock()
	if a.accessToken == "" {
		a.rotate()
	}
	resp := map[string]any{
		"accessToken":  a.accessToken,
		"refreshToken": a.refreshToken,
		"role":         AccountRole,
		"user":         userBody{ID: AccountUserID, Name: "Traveler", Email: AccountEmail, Role: AccountRole},
	}
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (a *authState) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshCalls++
	if !a.refreshOK || req.RefreshToken != a.refreshToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "refresh token expired"})
		return
	}
	a.rotate()
	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken":  a.accessToken,
		"refreshToken": a.refreshToken,
	})
}

func (a *authState) me(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	a.mu.Lock()
	valid := token != "" && token == a.accessToken
	a.mu.Unlock()
	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
		return
	}
	writeJSON(w, http.StatusOK, userBody{ID: AccountUserID, Name: "Traveler", Email: AccountEmail, Role: AccountRole})
}

// rotate issues a new token pair. Callers hold a.mu.
func (a *authState) rotate() {
	a.generation++
	a.accessToken = "access-" + itoa(a.generation)
	a.refreshToken = "refresh-" + itoa(a.generation)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
