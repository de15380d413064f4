package server

import "net/http"

// LogoutHandler destroys the session and clears the cookie. It always
// returns 200: logging out without a valid session is not an error.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.Logout(r.Context(), sessionIDFromRequest(r))
		s.ClearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
	}
}
