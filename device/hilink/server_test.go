package hilink

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/clbanning/mxj/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

// hilinkServer mocks the router firmware: token bootstrap, both login
// exchanges, and the data endpoints behind them.
type hilinkServer struct {
	t        *testing.T
	username string
	password string

	legacyEnabled   bool
	scramEnabled    bool
	alreadyLoggedIn bool   // the login endpoint answers 108002
	omitServerNonce bool   // the challenge response drops servernonce
	failNextWith    string // vendor code for the next authenticated call

	privateKey *rsa.PrivateKey

	currentToken  string
	sessionId     string
	authenticated bool
	clientNonce   string
	salt          string
	serverNonce   string
	iterations    int

	tokenFetches int // SesTokInfo hits
	loginPosts   int
	authPosts    int // authentication_login hits

	lastWifiPassphrase []byte // OAEP-decrypted wlan settings payload
}

func createHilinkServer(t *testing.T, server *hilinkServer) (*httptest.Server, uint16) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server.privateKey = key
	server.iterations = 100

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/webserver/SesTokInfo", server.handleSesTokInfo)
	mux.HandleFunc("GET /api/webserver/token", server.handleScramToken)
	mux.HandleFunc("GET /api/webserver/publickey", server.handlePublicKey)
	mux.HandleFunc("POST /api/user/login", server.handleLogin)
	mux.HandleFunc("POST /api/user/challenge_login", server.handleChallengeLogin)
	mux.HandleFunc("POST /api/user/authentication_login", server.handleAuthenticationLogin)
	mux.HandleFunc("POST /api/user/logout", server.handleLogout)
	mux.HandleFunc("GET /api/device/information", server.handleDeviceInfo)
	mux.HandleFunc("GET /api/device/signal", server.handleSignal)
	mux.HandleFunc("POST /api/device/control", server.handleControl)
	mux.HandleFunc("GET /api/monitoring/status", server.handleMonitoringStatus)
	mux.HandleFunc("GET /api/monitoring/traffic-statistics", server.handleTraffic)
	mux.HandleFunc("GET /api/wlan/basic-settings", server.handleWlanGet)
	mux.HandleFunc("POST /api/wlan/basic-settings", server.handleWlanPost)
	mux.HandleFunc("GET /api/sms/sms-count", server.handleSmsCount)
	testServer := httptest.NewServer(mux)
	port, err := strconv.Atoi(strings.Split(testServer.URL, ":")[2])
	require.NoError(t, err)
	return testServer, uint16(port)
}

func (s *hilinkServer) writeXML(writer http.ResponseWriter, body string) {
	writer.WriteHeader(http.StatusOK)
	_, err := writer.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` + body))
	require.NoError(s.t, err)
}

func (s *hilinkServer) writeError(writer http.ResponseWriter, code string) {
	s.writeXML(writer, "<error><code>"+code+"</code><message></message></error>")
}

func (s *hilinkServer) rotateToken() string {
	s.currentToken = randomHex(s.t, 16)
	return s.currentToken
}

func (s *hilinkServer) decodeRequest(request *http.Request, into any) {
	body, err := io.ReadAll(request.Body)
	require.NoError(s.t, err)
	m, err := mxj.NewMapXml(body)
	require.NoError(s.t, err)
	require.NoError(s.t, mapstructure.Decode(m["request"], into))
}

// requireFreshData gates authenticated data endpoints, optionally failing one
// call with a configured vendor code.
func (s *hilinkServer) requireFreshData(writer http.ResponseWriter) bool {
	if s.failNextWith != "" {
		code := s.failNextWith
		s.failNextWith = ""
		s.writeError(writer, code)
		return false
	}
	if !s.authenticated {
		s.writeError(writer, "100003") // no rights
		return false
	}
	return true
}

func (s *hilinkServer) handleSesTokInfo(writer http.ResponseWriter, _ *http.Request) {
	s.tokenFetches++
	if s.sessionId == "" {
		s.sessionId = randomHex(s.t, 16)
	}
	// First contact: both markers travel in the body, not headers.
	s.writeXML(writer, "<response><SesInfo>SessionID="+s.sessionId+"</SesInfo><TokInfo>"+s.rotateToken()+"</TokInfo></response>")
}

func (s *hilinkServer) handleScramToken(writer http.ResponseWriter, _ *http.Request) {
	if s.sessionId == "" {
		s.sessionId = randomHex(s.t, 16)
	}
	http.SetCookie(writer, &http.Cookie{Name: "SessionID", Value: s.sessionId})
	// The firmware returns two concatenated tokens; only the trailing one
	// is valid for this session.
	stale := randomHex(s.t, 16)
	s.writeXML(writer, "<response><token>"+stale+s.rotateToken()+"</token></response>")
}

func (s *hilinkServer) handlePublicKey(writer http.ResponseWriter, _ *http.Request) {
	s.writeXML(writer, "<response><encpubkeyn>"+s.privateKey.N.Text(16)+"</encpubkeyn><encpubkeye>010001</encpubkeye></response>")
}

func (s *hilinkServer) handleLogin(writer http.ResponseWriter, request *http.Request) {
	s.loginPosts++
	if !s.legacyEnabled {
		s.writeError(writer, "100002") // not supported
		return
	}
	assert.Equal(s.t, s.currentToken, request.Header.Get(verificationTokenHeader))
	var params struct {
		Username     string
		Password     string
		PasswordType string `mapstructure:"password_type"`
	}
	s.decodeRequest(request, &params)
	assert.Equal(s.t, "4", params.PasswordType)

	if s.alreadyLoggedIn {
		s.writeError(writer, "108002")
		return
	}

	innerDigest := sha256.Sum256([]byte(s.password))
	inner := base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(innerDigest[:])))
	outerDigest := sha256.Sum256([]byte(s.username + inner + s.currentToken))
	expected := base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(outerDigest[:])))

	if params.Username != s.username || params.Password != expected {
		s.writeError(writer, "108006") // wrong credentials
		return
	}
	s.authenticated = true
	s.writeXML(writer, "<response>OK</response>")
}

func (s *hilinkServer) handleChallengeLogin(writer http.ResponseWriter, request *http.Request) {
	if !s.scramEnabled {
		s.writeError(writer, "100002")
		return
	}
	assert.Equal(s.t, s.currentToken, request.Header.Get(verificationTokenHeader))
	var params struct {
		Username   string
		Firstnonce string
		Mode       string
	}
	s.decodeRequest(request, &params)
	assert.Equal(s.t, s.username, params.Username)
	assert.Len(s.t, params.Firstnonce, 64)

	s.clientNonce = params.Firstnonce
	s.salt = randomHex(s.t, 16)
	s.serverNonce = params.Firstnonce + randomHex(s.t, 16)
	writer.Header().Set(verificationTokenHeader, s.rotateToken())
	if s.omitServerNonce {
		s.writeXML(writer, "<response><salt>"+s.salt+"</salt><iterations>"+strconv.Itoa(s.iterations)+"</iterations></response>")
		return
	}
	s.writeXML(writer, "<response><salt>"+s.salt+"</salt><servernonce>"+s.serverNonce+
		"</servernonce><iterations>"+strconv.Itoa(s.iterations)+"</iterations></response>")
}

func (s *hilinkServer) handleAuthenticationLogin(writer http.ResponseWriter, request *http.Request) {
	s.authPosts++
	assert.Equal(s.t, s.currentToken, request.Header.Get(verificationTokenHeader))
	var params struct {
		ClientProof string `mapstructure:"clientproof"`
		FinalNonce  string `mapstructure:"finalnonce"`
	}
	s.decodeRequest(request, &params)
	assert.Equal(s.t, s.serverNonce, params.FinalNonce)

	if params.ClientProof != s.expectedClientProof() {
		s.writeError(writer, "108006")
		return
	}
	s.authenticated = true
	writer.Header().Set(verificationTokenHeader, s.rotateToken())
	s.writeXML(writer, "<response><serversignature>"+randomHex(s.t, 32)+"</serversignature></response>")
}

// expectedClientProof mirrors the client derivation against the known
// password, the way the real firmware validates the exchange.
func (s *hilinkServer) expectedClientProof() string {
	saltBytes, err := hex.DecodeString(s.salt)
	require.NoError(s.t, err)
	passwordDigest := sha256.Sum256([]byte(s.password))
	salted := pbkdf2.Key(passwordDigest[:], saltBytes, s.iterations, sha256.Size, sha256.New)
	clientKeyMac := hmac.New(sha256.New, salted)
	clientKeyMac.Write([]byte("Client Key"))
	clientKey := clientKeyMac.Sum(nil)
	storedKey := sha256.Sum256(clientKey)
	signatureMac := hmac.New(sha256.New, storedKey[:])
	signatureMac.Write([]byte(s.clientNonce + "," + s.serverNonce + "," + s.serverNonce))
	signature := signatureMac.Sum(nil)
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ signature[i]
	}
	return hex.EncodeToString(proof)
}

func (s *hilinkServer) handleLogout(writer http.ResponseWriter, _ *http.Request) {
	s.authenticated = false
	s.writeXML(writer, "<response>OK</response>")
}

func (s *hilinkServer) handleDeviceInfo(writer http.ResponseWriter, _ *http.Request) {
	if !s.requireFreshData(writer) {
		return
	}
	s.writeXML(writer, "<response><DeviceName>B525s-23a</DeviceName><SerialNumber>R7D8S19703000042</SerialNumber>"+
		"<Imei>866191030007437</Imei><HardwareVersion>WL1B520FM</HardwareVersion>"+
		"<SoftwareVersion>11.189.63.00.74</SoftwareVersion><workmode>LTE</workmode></response>")
}

func (s *hilinkServer) handleSignal(writer http.ResponseWriter, _ *http.Request) {
	if !s.requireFreshData(writer) {
		return
	}
	s.writeXML(writer, "<response><rsrp>-95dBm</rsrp><rsrq>-8dB</rsrq><rssi>-67dBm</rssi>"+
		"<sinr>15dB</sinr><cell_id>13169687</cell_id></response>")
}

func (s *hilinkServer) handleControl(writer http.ResponseWriter, request *http.Request) {
	if !s.requireFreshData(writer) {
		return
	}
	assert.Equal(s.t, s.currentToken, request.Header.Get(verificationTokenHeader))
	var params struct{ Control string }
	s.decodeRequest(request, &params)
	assert.Equal(s.t, "1", params.Control)
	s.writeXML(writer, "<response>OK</response>")
}

func (s *hilinkServer) handleMonitoringStatus(writer http.ResponseWriter, _ *http.Request) {
	if !s.requireFreshData(writer) {
		return
	}
	s.writeXML(writer, "<response><ConnectionStatus>901</ConnectionStatus>"+
		"<CurrentNetworkType>19</CurrentNetworkType><SignalIcon>4</SignalIcon></response>")
}

func (s *hilinkServer) handleTraffic(writer http.ResponseWriter, _ *http.Request) {
	if !s.requireFreshData(writer) {
		return
	}
	s.writeXML(writer, "<response><CurrentDownloadRate>1048576</CurrentDownloadRate>"+
		"<CurrentUploadRate>65536</CurrentUploadRate><TotalDownload>123456789</TotalDownload>"+
		"<TotalUpload>9876543</TotalUpload><CurrentConnectTime>86400</CurrentConnectTime></response>")
}

func (s *hilinkServer) handleWlanGet(writer http.ResponseWriter, _ *http.Request) {
	if !s.requireFreshData(writer) {
		return
	}
	s.writeXML(writer, "<response><WifiSsid>TestNet</WifiSsid><WifiEnable>1</WifiEnable></response>")
}

func (s *hilinkServer) handleWlanPost(writer http.ResponseWriter, request *http.Request) {
	if !s.requireFreshData(writer) {
		return
	}
	assert.Equal(s.t, s.currentToken, request.Header.Get(verificationTokenHeader))
	var params struct {
		WifiSsid   string
		WifiWpapsk string
	}
	s.decodeRequest(request, &params)
	require.Len(s.t, params.WifiWpapsk, 512)
	ciphertext, err := hex.DecodeString(params.WifiWpapsk)
	require.NoError(s.t, err)
	plaintext, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, s.privateKey, ciphertext, nil)
	require.NoError(s.t, err)
	s.lastWifiPassphrase = plaintext
	s.writeXML(writer, "<response>OK</response>")
}

func (s *hilinkServer) handleSmsCount(writer http.ResponseWriter, _ *http.Request) {
	if !s.requireFreshData(writer) {
		return
	}
	s.writeXML(writer, "<response><LocalUnread>2</LocalUnread><LocalInbox>15</LocalInbox></response>")
}

func randomHex(t *testing.T, byteCount int) string {
	buffer := make([]byte, byteCount)
	bytesGenerated, err := rand.Read(buffer)
	require.NoError(t, err)
	require.Equal(t, byteCount, bytesGenerated)
	return hex.EncodeToString(buffer)
}
