package hilink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const requestTimeout = 10 * time.Second
const verificationTokenHeader = "__RequestVerificationToken"
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type routerAddresses struct {
	ip         string // x.x.x.x
	baseUrl    string // http://x.x.x.x:80
	contentUrl string // http://x.x.x.x:80/html/content.html
}

// exchangeObserver receives the transport's observability side effects: last
// activity on every successful call, session health when expiry is detected.
type exchangeObserver interface {
	exchangeSucceeded(at time.Time)
	sessionExpired()
}

// routerConnection issues raw HTTP exchanges against one device and owns its
// session state. The HTTP payloads are XML both ways; vendor failures arrive
// as error-coded bodies under a 200 status, so every response body is
// classified here before the caller sees it.
type routerConnection struct {
	addresses routerAddresses
	client    *http.Client
	session   sessionState
	observer  exchangeObserver
}

//goland:noinspection HttpUrlsUsage
func newRouterConnection(routerIp string, port uint16, observer exchangeObserver) *routerConnection {
	tr := &http.Transport{
		DisableKeepAlives:      false,
		DisableCompression:     false,
		MaxIdleConnsPerHost:    1,
		MaxConnsPerHost:        1,
		IdleConnTimeout:        5 * time.Minute,
		ResponseHeaderTimeout:  5 * time.Second,
		MaxResponseHeaderBytes: 4096,
		ForceAttemptHTTP2:      false,
	}
	baseUrl := "http://" + routerIp + ":" + strconv.FormatUint(uint64(port), 10)
	return &routerConnection{
		addresses: routerAddresses{
			ip:         routerIp,
			baseUrl:    baseUrl,
			contentUrl: baseUrl + "/html/content.html",
		},
		client: &http.Client{
			Transport: tr,
			Timeout:   requestTimeout,
		},
		observer: observer,
	}
}

func (rc *routerConnection) applyHeadersTo(request *http.Request, contentType, token, cookie string) {
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("User-Agent", browserUserAgent)
	request.Header.Set("Referer", rc.addresses.contentUrl)
	request.Header.Set("X-Requested-With", "XMLHttpRequest")
	request.Header.Set("Host", rc.addresses.ip)
	if token != "" {
		// Direct map write: the firmware wants the exact mixed-case header
		// name, which Header.Set would canonicalize away.
		request.Header[verificationTokenHeader] = []string{token}
	}
	if cookie != "" {
		request.Header.Set("Cookie", cookie)
	}
}

func (rc *routerConnection) get(endpoint string) ([]byte, error) {
	request, err := http.NewRequest(http.MethodGet, rc.addresses.baseUrl+endpoint, nil)
	if err != nil {
		return nil, err
	}
	rc.applyHeadersTo(request, "application/x-www-form-urlencoded; charset=UTF-8", rc.session.token, rc.session.cookie)
	return rc.exchange(request)
}

func (rc *routerConnection) post(endpoint string, body []byte) ([]byte, error) {
	return rc.postWithSession(endpoint, body, rc.session.token, rc.session.cookie)
}

// postWithSession lets a login exchange attach staged token/cookie values
// that have not been committed to the session yet.
func (rc *routerConnection) postWithSession(endpoint string, body []byte, token, cookie string) ([]byte, error) {
	request, err := http.NewRequest(http.MethodPost, rc.addresses.baseUrl+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	rc.applyHeadersTo(request, "application/xml", token, cookie)
	return rc.exchange(request)
}

func (rc *routerConnection) exchange(request *http.Request) ([]byte, error) {
	response, err := rc.client.Do(request)
	if err != nil {
		return nil, &TransportError{err: err}
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(response.Body)

	// The server rotates session markers via headers on any response,
	// success or failure; absorb them before anything else.
	rc.session.updateToken(response.Header.Get(verificationTokenHeader))
	for _, cookie := range response.Cookies() {
		if cookie.Name == "SessionID" {
			rc.session.updateCookie("SessionID=" + cookie.Value)
		}
	}

	if response.StatusCode != 200 {
		return nil, &TransportError{err: errors.New("expected status code 200, got " + strconv.Itoa(response.StatusCode))}
	}
	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &TransportError{err: fmt.Errorf("could not read response body: %w", err)}
	}

	if err := classifyVendorError(responseBody); err != nil {
		var expired *SessionExpiredError
		if errors.As(err, &expired) {
			rc.session.clear()
			if rc.observer != nil {
				rc.observer.sessionExpired()
			}
		}
		return nil, err
	}
	if rc.observer != nil {
		rc.observer.exchangeSucceeded(time.Now())
	}
	return responseBody, nil
}
