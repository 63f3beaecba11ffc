package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	sessionName = "session"
	tokenName   = "shiftreport-token"
)

type ctxKey int

const principalKey ctxKey = iota

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey).(principal)
	return p, ok
}

// deriveKey gives the cookie store and the token codec distinct keys from
// one configured secret.
func deriveKey(secret, purpose string) []byte {
	sum := sha256.Sum256([]byte(purpose + "\x00" + secret))
	return sum[:]
}

func newSessionStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(deriveKey(secret, "session"))
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

func newTokenCodec(secret string, maxAge time.Duration) *securecookie.SecureCookie {
	codec := securecookie.New(deriveKey(secret, "token"), nil)
	codec.MaxAge(int(maxAge.Seconds()))
	codec.SetSerializer(securecookie.JSONEncoder{})
	return codec
}

func (s *Server) issueToken(p principal) (string, error) {
	return s.tokens.Encode(tokenName, p)
}

// authenticate resolves the caller from a bearer token, falling back to the
// cookie session. It writes the error response itself when it fails.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (principal, bool) {
	userID, ok := s.callerID(w, r)
	if !ok {
		return principal{}, false
	}

	// Name and role come from the users table so deleted or demoted
	// accounts lose access before their token or cookie expires.
	user, err := s.store.UserByID(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "account no longer exists")
		return principal{}, false
	}
	if err != nil {
		s.storeError(w, "user", err)
		return principal{}, false
	}
	return principal{UserID: user.ID, Username: user.Username, Role: user.Role}, true
}

// callerID returns the user id carried by the bearer token or the cookie
// session.
func (s *Server) callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header")
			return 0, false
		}
		var p principal
		if err := s.tokens.Decode(tokenName, token, &p); err != nil {
			s.logger.Debug("token rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return 0, false
		}
		return p.UserID, true
	}

	session, _ := s.sessions.Get(r, sessionName)

	userID, ok := session.Values["user_id"].(int64)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return 0, false
	}

	// Check if session has expired
	lastActivity, ok := session.Values["last_activity"].(int64)
	if !ok || s.now().Unix()-lastActivity > int64(s.sessionIdle.Seconds()) {
		session.Options.MaxAge = -1
		_ = session.Save(r, w)
		writeError(w, http.StatusUnauthorized, "session expired")
		return 0, false
	}

	// Update last activity
	session.Values["last_activity"] = s.now().Unix()
	if err := session.Save(r, w); err != nil {
		s.logger.Warn("save session", zap.Error(err))
	}
	return userID, true
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		p, _ := principalFrom(r.Context())
		if !p.isAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r)
	})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user User) {
	session, _ := s.sessions.Get(r, sessionName)
	session.Options.MaxAge = int(s.sessionIdle.Seconds())
	session.Values["user_id"] = user.ID
	session.Values["last_activity"] = s.now().Unix()
	if err := session.Save(r, w); err != nil {
		s.logger.Warn("save session", zap.Error(err))
	}
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	session, _ := s.sessions.Get(r, sessionName)
	delete(session.Values, "user_id")
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		s.logger.Warn("save session", zap.Error(err))
	}
}
