package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/ssh"

	"github.com/hnrobert/gridlogin/internal/logger"
	"github.com/hnrobert/gridlogin/internal/login"
)

// LoginView is the public summary of a credential record. Secrets never
// leave the process; keys are shown by fingerprint.
type LoginView struct {
	Username    string    `json:"username"`
	Home        string    `json:"home"`
	Method      string    `json:"method"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	IPAddr      string    `json:"ip_addr,omitempty"`
	Chroot      bool      `json:"chroot"`
	LastUpdate  time.Time `json:"last_update"`
}

func viewOf(l *login.Login) LoginView {
	v := LoginView{
		Username:   l.Username,
		Home:       l.Home,
		Method:     l.Method().String(),
		IPAddr:     l.IPAddr,
		Chroot:     l.Chroot,
		LastUpdate: l.LastUpdate().UTC(),
	}
	if l.PublicKey != nil {
		v.Fingerprint = ssh.FingerprintSHA256(l.PublicKey)
	}
	return v
}

func (a *App) handleLogins(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	logins := a.daemon.Lookup(username)
	out := make([]LoginView, 0, len(logins))
	for _, l := range logins {
		out = append(out, viewOf(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.daemon.Limiter().Snapshot())
}

func (a *App) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if a.sweeper != nil {
		a.sweeper.Trigger()
		writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": true})
		return
	}
	changed := a.daemon.Refresh(r.Context())
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"changed": changed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
