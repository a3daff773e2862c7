package hilink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/clbanning/mxj/v2"
)

var errNotXML = errors.New("response body is not well-formed XML")

// xmlTagText extracts the text content of a single named tag from a vendor
// XML payload, looking one level below the root element.
func xmlTagText(body []byte, tag string) (string, error) {
	m, err := mxj.NewMapXml(body)
	if err != nil {
		return "", errNotXML
	}
	for _, root := range m {
		inner, ok := root.(map[string]interface{})
		if !ok {
			continue
		}
		value, present := inner[tag]
		if !present {
			continue
		}
		text, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("element <%s> does not hold a text value", tag)
		}
		return text, nil
	}
	return "", fmt.Errorf("no <%s> element in response", tag)
}

// xmlTagInt is xmlTagText for numeric fields; the firmware decorates some of
// them with units ("-95dBm", "20dB") which are trimmed before parsing.
func xmlTagInt(body []byte, tag string) (int, error) {
	text, err := xmlTagText(body, tag)
	if err != nil {
		return 0, err
	}
	text = strings.TrimFunc(text, func(r rune) bool {
		return !(r == '-' || (r >= '0' && r <= '9'))
	})
	return strconv.Atoi(text)
}

// classifyVendorError inspects a body for the vendor <error><code> wrapper
// and maps it to a typed error. A 2xx status with an error-coded body is
// still a failure, so this runs on every response.
func classifyVendorError(body []byte) error {
	m, err := mxj.NewMapXml(body)
	if err != nil {
		// Not XML at all; leave it to the caller's parser.
		return nil
	}
	wrapper, present := m["error"]
	if !present {
		return nil
	}
	fields, ok := wrapper.(map[string]interface{})
	if !ok {
		return &VendorError{Code: "unknown"}
	}
	code, _ := fields["code"].(string)
	if code == "" {
		code = "unknown"
	}
	return vendorErrorFor(code)
}

// isOKResponse reports whether a body is the bare success marker the firmware
// uses for mutating calls. Older builds answer with different casing.
func isOKResponse(body []byte) bool {
	m, err := mxj.NewMapXml(body)
	if err != nil {
		return false
	}
	text, ok := m["response"].(string)
	if !ok {
		return false
	}
	switch strings.TrimSpace(text) {
	case "OK", "Ok", "ok", "success":
		return true
	}
	return false
}
