package hilink

import (
	"strings"
	"time"
)

const sessionLifetime = 2 * time.Minute
const tokenRefreshMargin = 10 * time.Second

// sessionState holds the anti-CSRF token, the SessionID cookie pair and the
// point after which the token must be re-fetched. One instance per configured
// router address, owned by its routerConnection.
type sessionState struct {
	token  string
	cookie string // the full "SessionID=..." pair as sent in the Cookie header
	expiry time.Time
}

// commit installs a token/cookie pair parsed from the same token-fetch (or
// login) response body. An empty cookie keeps the current one: the server is
// allowed to rotate only the token.
func (s *sessionState) commit(token, cookie string) {
	s.token = token
	if cookie != "" {
		s.cookie = cookie
	}
	s.expiry = time.Now().Add(sessionLifetime)
}

// updateToken absorbs a rotated token from a response header.
func (s *sessionState) updateToken(token string) {
	if token != "" {
		s.token = token
		s.expiry = time.Now().Add(sessionLifetime)
	}
}

func (s *sessionState) updateCookie(cookie string) {
	if cookie != "" {
		s.cookie = cookie
	}
}

func (s *sessionState) clear() {
	s.token = ""
	s.cookie = ""
	s.expiry = time.Time{}
}

func (s *sessionState) isEmpty() bool {
	return s.token == "" && s.cookie == "" && s.expiry.IsZero()
}

// needsRefresh reports whether the token is absent or within margin of its
// expiry.
func (s *sessionState) needsRefresh(margin time.Duration) bool {
	return s.token == "" || !time.Now().Add(margin).Before(s.expiry)
}

// normalizeSessionCookie turns a SesInfo body value or Set-Cookie value into
// the "SessionID=..." pair the device expects back.
func normalizeSessionCookie(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if before, _, found := strings.Cut(value, ";"); found {
		value = before
	}
	if !strings.Contains(value, "=") {
		return "SessionID=" + value
	}
	return value
}
