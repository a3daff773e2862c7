package hilink

import (
	"encoding/xml"
	"fmt"
	"sync"

	"routermon/types"
)

// Endpoints fixed by the firmware.
const (
	endpointSesTokInfo          = "/api/webserver/SesTokInfo"
	endpointScramToken          = "/api/webserver/token"
	endpointPublicKey           = "/api/webserver/publickey"
	endpointLogin               = "/api/user/login"
	endpointChallengeLogin      = "/api/user/challenge_login"
	endpointAuthenticationLogin = "/api/user/authentication_login"
	endpointLogout              = "/api/user/logout"
	endpointDeviceInfo          = "/api/device/information"
	endpointSignal              = "/api/device/signal"
	endpointControl             = "/api/device/control"
	endpointMonitoringStatus    = "/api/monitoring/status"
	endpointTrafficStatistics   = "/api/monitoring/traffic-statistics"
	endpointWlanBasicSettings   = "/api/wlan/basic-settings"
	endpointSmsCount            = "/api/sms/sms-count"
)

// Client is the authenticated request facade over one router. All exchanges
// are serialized behind a mutex so a token refresh and the request that uses
// it can never interleave with another caller's refresh.
type Client struct {
	conn *routerConnection
	mode types.LoginMode
	mu   sync.Mutex
}

func NewClient(routerIp string, port uint16, mode types.LoginMode, observer exchangeObserver) *Client {
	return &Client{
		conn: newRouterConnection(routerIp, port, observer),
		mode: mode,
	}
}

func (c *Client) strategies() []loginStrategy {
	switch c.mode {
	case types.LoginModeLegacy:
		return []loginStrategy{legacyLogin{}}
	case types.LoginModeScram:
		return []loginStrategy{scramLogin{}}
	default:
		return []loginStrategy{legacyLogin{}, scramLogin{}}
	}
}

// Login attempts the configured strategies in order and reports whether any
// of them authenticated. Session state is untouched on a false result.
func (c *Client) Login(username, password string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, strategy := range c.strategies() {
		ok, err := strategy.attempt(c.conn, username, password)
		if err != nil {
			return false, &AuthError{Step: strategy.name(), err: err}
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type logoutRequest struct {
	XMLName xml.Name `xml:"request"`
	Logout  int      `xml:"Logout"`
}

// Logout posts the logout envelope with the current token. The server
// invalidates the session; client-side state is deliberately left alone.
func (c *Client) Logout() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, err := envelope(logoutRequest{Logout: 1})
	if err != nil {
		return false, err
	}
	if _, err := c.conn.post(endpointLogout, body); err != nil {
		return false, err
	}
	return true, nil
}

// Get issues an authenticated GET. The token is refreshed lazily: only when
// absent or within the refresh margin of its expiry.
func (c *Client) Get(endpoint string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn.session.needsRefresh(tokenRefreshMargin) {
		if err := c.refreshSessionToken(); err != nil {
			return "", err
		}
	}
	body, err := c.conn.get(endpoint)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Post issues an authenticated POST. Mutating calls never reuse a
// near-expired token: the refresh is unconditional.
func (c *Client) Post(endpoint, xmlBody string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshSessionToken(); err != nil {
		return "", err
	}
	body, err := c.conn.post(endpoint, []byte(xmlBody))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// refreshSessionToken performs the token-fetch exchange and commits both
// markers from the same response body.
func (c *Client) refreshSessionToken() error {
	body, err := c.conn.get(endpointSesTokInfo)
	if err != nil {
		return err
	}
	token, err := xmlTagText(body, "TokInfo")
	if err != nil {
		return fmt.Errorf("token fetch returned no verification token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("token fetch returned an empty verification token")
	}
	cookie := ""
	if sesInfo, err := xmlTagText(body, "SesInfo"); err == nil {
		cookie = normalizeSessionCookie(sesInfo)
	}
	c.conn.session.commit(token, cookie)
	return nil
}

// SessionEmpty reports whether all session markers are cleared. Exposed for
// health checks and tests; a cleared session forces a fresh token fetch on
// the next call.
func (c *Client) SessionEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.session.isEmpty()
}
