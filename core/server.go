package core

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Cookie names are part of the wire contract: session_id is the only cookie
// readable by client-side code.
const (
	CookieState   = "state"
	CookieSession = "session_id"
	CookieSecured = "session_sid"
)

type Server struct {
	states   *StateManager
	sessions *SessionManager
	provider AuthProvider
	config   *Config
}

func NewServer(states *StateManager, sessions *SessionManager, provider AuthProvider, config *Config) *Server {
	return &Server{
		states:   states,
		sessions: sessions,
		provider: provider,
		config:   config,
	}
}

// HandleLogin starts the authorization-code flow. A browser that already
// holds a valid (or refreshable) session is sent straight back without
// re-prompting.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	returnURL := s.resolveReturnURL(r)

	sess, err := s.sessions.Validate(ctx, cookieValue(r, CookieSession), cookieValue(r, CookieSecured))
	if err == nil {
		s.applySession(w, sess)
		http.Redirect(w, r, returnURL, http.StatusFound)
		return
	}

	id, stateValue, err := s.states.Issue(returnURL)
	if err != nil {
		slog.Error("issuing state", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to start login")
		return
	}

	s.setCookie(w, CookieState, stateValue, time.Now().Add(s.config.StateTTLDuration()), true)
	http.Redirect(w, r, s.provider.AuthorizeURL(id), http.StatusFound)
}

// HandleCallback completes the flow: validate state, exchange the code, mint
// the session cookies, and send the browser back where it came from. The
// state cookie is deleted before any outcome so it can never be replayed.
func (s *Server) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	stateValue := cookieValue(r, CookieState)
	s.clearCookie(w, CookieState)

	returnURL, stateErr := s.states.Validate(stateValue, query.Get("state"))
	if stateValue == "" || errors.Is(stateErr, ErrInvalidState) {
		respondError(w, http.StatusForbidden, "forbidden", "Forbidden")
		return
	}

	code := query.Get("code")
	if code == "" {
		// User declined consent. Not an error; just go back.
		if returnURL == "" {
			returnURL = s.config.HomeURL
		}
		http.Redirect(w, r, returnURL, http.StatusFound)
		return
	}

	if stateErr != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
		return
	}

	tokens, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		// Login did not complete; never a hard failure for the end user.
		slog.Warn("token exchange failed", "error", err)
		http.Redirect(w, r, returnURL, http.StatusFound)
		return
	}

	sess, err := s.sessions.Issue(ctx, tokens)
	if err != nil {
		slog.Warn("session issue failed", "error", err)
		http.Redirect(w, r, returnURL, http.StatusFound)
		return
	}

	s.applySession(w, sess)
	http.Redirect(w, r, returnURL, http.StatusFound)
}

// HandleMe serves the live profile for the current session, refreshing the
// session cookies as a side effect when the access token is near expiry.
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := s.sessions.Validate(ctx, cookieValue(r, CookieSession), cookieValue(r, CookieSecured))
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.applySession(w, sess)

	info, err := s.provider.GetUserInfo(ctx, sess.AccessToken)
	if err != nil {
		if errors.Is(err, ErrProviderUnauthorized) {
			s.clearSessionCookies(w)
			respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		slog.Error("fetching profile", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch profile")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"id":    info.ProviderUserID,
		"name":  info.Name,
		"image": info.Picture,
	})
}

// HandleDeleteMe revokes the upstream tokens and deletes the profile record.
// Cookies are cleared no matter what happens upstream.
func (s *Server) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := s.sessions.Validate(ctx, cookieValue(r, CookieSession), cookieValue(r, CookieSecured))
	if err != nil {
		s.respondSessionError(w, err)
		return
	}

	s.clearSessionCookies(w)

	result, err := s.sessions.DeleteAccount(ctx, sess)
	if err != nil {
		slog.Error("deleting account", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to delete account")
		return
	}
	if result == nil {
		result = &RevokeResult{Result: "success"}
	}

	respondJSON(w, http.StatusOK, result)
}

// HandleLogout drops the session from this browser. Upstream revocation is
// best effort; the redirect and cookie clearing happen regardless.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	returnURL := s.resolveReturnURL(r)

	if sess, err := s.sessions.Validate(ctx, cookieValue(r, CookieSession), cookieValue(r, CookieSecured)); err == nil {
		if _, err := s.sessions.Revoke(ctx, sess.AccessToken); err != nil {
			slog.Warn("revoking token on logout", "error", err)
		}
	}

	s.clearSessionCookies(w)
	http.Redirect(w, r, returnURL, http.StatusFound)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Helper functions

// resolveReturnURL picks the post-login destination: explicit prevUrl query
// parameter, then Referer, then home. Anything that does not parse as an
// absolute URL falls back to home rather than failing the request.
func (s *Server) resolveReturnURL(r *http.Request) string {
	raw := r.URL.Query().Get("prevUrl")
	if raw == "" {
		raw = r.Header.Get("Referer")
	}
	if raw == "" {
		return s.config.HomeURL
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return s.config.HomeURL
	}
	return u.String()
}

func (s *Server) applySession(w http.ResponseWriter, sess *Session) {
	if sess.PublicToken != "" {
		s.setCookie(w, CookieSession, sess.PublicToken, sess.ExpiresAt, false)
	}
	if sess.SecuredToken != "" {
		s.setCookie(w, CookieSecured, sess.SecuredToken, time.Now().Add(s.config.SecuredSessionTTLDuration()), true)
	}
}

func (s *Server) setCookie(w http.ResponseWriter, name, value string, expires time.Time, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: httpOnly,
		Secure:   s.config.CookieSecure,
		Domain:   s.config.CookieDomain,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		Domain:   s.config.CookieDomain,
		SameSite: http.SameSiteLaxMode,
	})
}

// respondSessionError translates a Validate failure. Only a session that is
// actually dead clears the cookies; a transient upstream failure during
// refresh leaves them in place so the next request can try again.
func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnauthorized) {
		s.clearSessionCookies(w)
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}
	slog.Error("refreshing session", "error", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "Failed to refresh session")
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	s.clearCookie(w, CookieSession)
	s.clearCookie(w, CookieSecured)
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
