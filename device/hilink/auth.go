package hilink

import (
	"encoding/xml"
	"errors"
	"fmt"
)

// loginStrategy attempts one authentication exchange. A false result with a
// nil error means the device rejected the exchange; errors are reserved for
// transport-level failures. Session state is only committed on success.
type loginStrategy interface {
	name() string
	attempt(rc *routerConnection, username, password string) (bool, error)
}

func envelope(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// rejectedBy reports whether an exchange error is a device-side rejection
// (any vendor-coded body) rather than a transport failure.
func rejectedBy(err error) bool {
	var vendor *VendorError
	var parameter *ParameterError
	var expired *SessionExpiredError
	return errors.As(err, &vendor) || errors.As(err, &parameter) || errors.As(err, &expired)
}

// legacyLogin implements the single-shot hashed-password exchange.
type legacyLogin struct{}

func (legacyLogin) name() string { return "legacy" }

type legacyLoginRequest struct {
	XMLName      xml.Name `xml:"request"`
	Username     string   `xml:"Username"`
	Password     string   `xml:"Password"`
	PasswordType int      `xml:"password_type"`
}

func (legacyLogin) attempt(rc *routerConnection, username, password string) (bool, error) {
	// An existing session short-circuits the whole exchange: probe an
	// authenticated endpoint with the current cookie.
	if rc.session.cookie != "" {
		if _, err := rc.get(endpointDeviceInfo); err == nil {
			return true, nil
		}
	}

	body, err := rc.get(endpointSesTokInfo)
	if err != nil {
		if rejectedBy(err) {
			return false, nil
		}
		return false, err
	}
	// First contact carries the session identifier in the body itself, not
	// just headers.
	token, err := xmlTagText(body, "TokInfo")
	if err != nil || token == "" {
		return false, nil
	}
	cookie := ""
	if sesInfo, err := xmlTagText(body, "SesInfo"); err == nil {
		cookie = normalizeSessionCookie(sesInfo)
	}

	loginBody, err := envelope(legacyLoginRequest{
		Username:     username,
		Password:     legacyPasswordHash(username, password, token),
		PasswordType: 4,
	})
	if err != nil {
		return false, err
	}
	response, err := rc.postWithSession(endpointLogin, loginBody, token, cookie)
	if err != nil {
		var vendor *VendorError
		if errors.As(err, &vendor) && vendor.Code == codeAlreadyLoggedIn {
			// Idempotent login: adopt the in-flight exchange's session.
			rc.session.commit(token, cookie)
			return true, nil
		}
		if rejectedBy(err) {
			return false, nil
		}
		return false, err
	}
	if !isOKResponse(response) {
		return false, nil
	}
	rc.session.commit(token, cookie)
	return true, nil
}

// scramLogin implements the challenge/response exchange.
type scramLogin struct{}

func (scramLogin) name() string { return "scram" }

type challengeRequest struct {
	XMLName    xml.Name `xml:"request"`
	Username   string   `xml:"username"`
	Firstnonce string   `xml:"firstnonce"`
	Mode       int      `xml:"mode"`
}

type authenticationRequest struct {
	XMLName     xml.Name `xml:"request"`
	ClientProof string   `xml:"clientproof"`
	FinalNonce  string   `xml:"finalnonce"`
}

func (scramLogin) attempt(rc *routerConnection, username, password string) (bool, error) {
	body, err := rc.get(endpointScramToken)
	if err != nil {
		if rejectedBy(err) {
			return false, nil
		}
		return false, err
	}
	token, err := xmlTagText(body, "token")
	if err != nil || token == "" {
		return false, nil
	}
	// The token body carries two concatenated 32-character tokens; the
	// trailing one belongs to this session.
	if len(token) > 32 {
		token = token[len(token)-32:]
	}

	clientNonce, err := newClientNonce()
	if err != nil {
		return false, err
	}
	challengeBody, err := envelope(challengeRequest{
		Username:   username,
		Firstnonce: clientNonce,
		Mode:       1,
	})
	if err != nil {
		return false, err
	}
	challenge, err := rc.postWithSession(endpointChallengeLogin, challengeBody, token, rc.session.cookie)
	if err != nil {
		if rejectedBy(err) {
			return false, nil
		}
		return false, err
	}
	salt, saltErr := xmlTagText(challenge, "salt")
	serverNonce, nonceErr := xmlTagText(challenge, "servernonce")
	iterations, iterErr := xmlTagInt(challenge, "iterations")
	if saltErr != nil || nonceErr != nil || iterErr != nil || salt == "" || serverNonce == "" {
		// Incomplete challenge is terminal; the authentication POST is
		// never issued.
		return false, nil
	}

	proof, err := scramClientProof(password, clientNonce, serverNonce, salt, iterations)
	if err != nil {
		return false, fmt.Errorf("could not derive client proof: %w", err)
	}
	authBody, err := envelope(authenticationRequest{
		ClientProof: proof,
		FinalNonce:  serverNonce,
	})
	if err != nil {
		return false, err
	}
	// The challenge response rotated the verification token via headers;
	// the connection's session already absorbed it.
	response, err := rc.post(endpointAuthenticationLogin, authBody)
	if err != nil {
		if rejectedBy(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := xmlTagText(response, "serversignature"); err != nil && !isOKResponse(response) {
		return false, nil
	}
	rc.session.commit(rc.session.token, rc.session.cookie)
	return true, nil
}
