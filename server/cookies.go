package server

import "net/http"

// sessionCookieName is the cookie that carries the opaque session ID. Tokens
// never appear in cookies; the ID is the only credential the browser holds.
const sessionCookieName = "BIONICPRO_SESSION"

func (s *Server) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.Session.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.sessions.SessionLifetime().Seconds()),
	})
}

func (s *Server) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.Session.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// sessionIDFromRequest returns the session ID cookie value, or "" when the
// request carries none.
func sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
