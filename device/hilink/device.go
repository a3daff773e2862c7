package hilink

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"routermon/types"
)

// Device couples one router's API client with its exported metrics.
type Device struct {
	routerConfig *types.RouterConfig
	client       *Client
	username     string
	password     string
	metrics      *prometheusMetrics
	loggedIn     bool
	smsSupported *bool // capability memo, reset on re-login
}

func NewDevice(username, password string, config *types.RouterConfig, registry prometheus.Registerer, port uint16) (*Device, error) {
	metrics := registerMetrics(registry, types.GenerateCommonLabels(config))
	return &Device{
		routerConfig: config,
		client:       NewClient(config.Ip, port, config.LoginMode, metrics),
		username:     username,
		password:     password,
		metrics:      metrics,
	}, nil
}

// Client exposes the underlying facade for callers that issue their own
// endpoints.
func (dev *Device) Client() *Client {
	return dev.client
}

func (dev *Device) PollRouterAndUpdateMetrics() error {
	if !dev.loggedIn {
		log.Println("Not logged in, will log in before polling", dev.routerConfig.Site, dev.routerConfig.Name)
		if err := dev.login(); err != nil {
			return err
		}
	}
	var status = routerStatus{}
	if err := dev.populateAll(&status); err != nil {
		var expired *SessionExpiredError
		if !errors.As(err, &expired) {
			return err
		}
		// The session was cleared on detection; one fresh login and retry.
		dev.loggedIn = false
		if err := dev.login(); err != nil {
			return err
		}
		status = routerStatus{}
		if err := dev.populateAll(&status); err != nil {
			return err
		}
	}
	if err := dev.metrics.updateMetrics(&status); err != nil {
		return fmt.Errorf("could not update metrics for %s (%s): %w", dev.routerConfig.Ip, dev.routerConfig.Name, err)
	}
	return nil
}

func (dev *Device) ResetMetricsToRogueValues() {
	dev.metrics.resetToRogueValues()
}

// ResetCapabilityCache drops memoized capability probes; called after any
// re-authentication since capabilities are evaluated per session.
func (dev *Device) ResetCapabilityCache() {
	dev.smsSupported = nil
}

func (dev *Device) login() error {
	ok, err := dev.client.Login(dev.username, dev.password)
	if err != nil {
		return fmt.Errorf("could not log in to %s (%s): %w", dev.routerConfig.Ip, dev.routerConfig.Name, err)
	}
	if !ok {
		return fmt.Errorf("router %s (%s) rejected the configured credentials", dev.routerConfig.Ip, dev.routerConfig.Name)
	}
	dev.loggedIn = true
	dev.ResetCapabilityCache()
	return nil
}

type routerStatus struct {
	common
	*signalInfo
	*trafficInfo
	*wifiInfo
	*smsInfo
}

type common struct {
	DeviceName       string
	SerialNumber     string
	Imei             string
	HardwareVersion  string
	SoftwareVersion  string
	WorkMode         string
	ConnectionStatus int
	NetworkType      int
	SignalIcon       int
}
type signalInfo struct {
	Rsrp   int // dBm
	Rsrq   int // dB
	Rssi   int // dBm
	Sinr   int // dB
	CellId int
}
type trafficInfo struct {
	DownloadRate  int
	UploadRate    int
	TotalDownload int
	TotalUpload   int
	ConnectTime   int
}
type wifiInfo struct {
	Ssid    string
	Enabled bool
}
type smsInfo struct {
	UnreadCount int
	InboxCount  int
}

func (dev *Device) populateAll(status *routerStatus) error {
	if err := dev.populateDeviceInfo(status); err != nil {
		return err
	}
	if err := dev.populateSignal(status); err != nil {
		return err
	}
	if err := dev.populateMonitoringStatus(status); err != nil {
		return err
	}
	if err := dev.populateTraffic(status); err != nil {
		return err
	}
	if err := dev.populateWifi(status); err != nil {
		return err
	}
	return dev.populateSmsCount(status)
}

func (dev *Device) populateDeviceInfo(status *routerStatus) error {
	body, err := dev.client.Get(endpointDeviceInfo)
	if err != nil {
		return fmt.Errorf("could not fetch device information: %w", err)
	}
	raw := []byte(body)
	status.DeviceName, _ = xmlTagText(raw, "DeviceName")
	status.SerialNumber, _ = xmlTagText(raw, "SerialNumber")
	status.Imei, _ = xmlTagText(raw, "Imei")
	status.HardwareVersion, _ = xmlTagText(raw, "HardwareVersion")
	status.SoftwareVersion, _ = xmlTagText(raw, "SoftwareVersion")
	status.WorkMode, _ = xmlTagText(raw, "workmode")
	return nil
}

func (dev *Device) populateSignal(status *routerStatus) error {
	body, err := dev.client.Get(endpointSignal)
	if err != nil {
		return fmt.Errorf("could not fetch signal info: %w", err)
	}
	raw := []byte(body)
	info := signalInfo{}
	info.Rsrp, _ = xmlTagInt(raw, "rsrp")
	info.Rsrq, _ = xmlTagInt(raw, "rsrq")
	info.Rssi, _ = xmlTagInt(raw, "rssi")
	info.Sinr, _ = xmlTagInt(raw, "sinr")
	info.CellId, _ = xmlTagInt(raw, "cell_id")
	status.signalInfo = &info
	return nil
}

func (dev *Device) populateMonitoringStatus(status *routerStatus) error {
	body, err := dev.client.Get(endpointMonitoringStatus)
	if err != nil {
		return fmt.Errorf("could not fetch monitoring status: %w", err)
	}
	raw := []byte(body)
	status.ConnectionStatus, _ = xmlTagInt(raw, "ConnectionStatus")
	status.NetworkType, _ = xmlTagInt(raw, "CurrentNetworkType")
	status.SignalIcon, _ = xmlTagInt(raw, "SignalIcon")
	return nil
}

func (dev *Device) populateTraffic(status *routerStatus) error {
	body, err := dev.client.Get(endpointTrafficStatistics)
	if err != nil {
		return fmt.Errorf("could not fetch traffic statistics: %w", err)
	}
	raw := []byte(body)
	info := trafficInfo{}
	info.DownloadRate, _ = xmlTagInt(raw, "CurrentDownloadRate")
	info.UploadRate, _ = xmlTagInt(raw, "CurrentUploadRate")
	info.TotalDownload, _ = xmlTagInt(raw, "TotalDownload")
	info.TotalUpload, _ = xmlTagInt(raw, "TotalUpload")
	info.ConnectTime, _ = xmlTagInt(raw, "CurrentConnectTime")
	status.trafficInfo = &info
	return nil
}

func (dev *Device) populateWifi(status *routerStatus) error {
	body, err := dev.client.Get(endpointWlanBasicSettings)
	if err != nil {
		return fmt.Errorf("could not fetch wlan settings: %w", err)
	}
	raw := []byte(body)
	info := wifiInfo{}
	info.Ssid, _ = xmlTagText(raw, "WifiSsid")
	enabled, _ := xmlTagInt(raw, "WifiEnable")
	info.Enabled = enabled == 1
	status.wifiInfo = &info
	return nil
}

func (dev *Device) populateSmsCount(status *routerStatus) error {
	if dev.smsSupported != nil && !*dev.smsSupported {
		return nil
	}
	body, err := dev.client.Get(endpointSmsCount)
	if err != nil {
		var vendor *VendorError
		if errors.As(err, &vendor) {
			// Firmware without an SMS stack answers with a vendor code;
			// remember that until the next re-login.
			supported := false
			dev.smsSupported = &supported
			return nil
		}
		return fmt.Errorf("could not fetch sms count: %w", err)
	}
	supported := true
	dev.smsSupported = &supported
	raw := []byte(body)
	info := smsInfo{}
	info.UnreadCount, _ = xmlTagInt(raw, "LocalUnread")
	info.InboxCount, _ = xmlTagInt(raw, "LocalInbox")
	status.smsInfo = &info
	return nil
}

type wifiSettingsRequest struct {
	XMLName    xml.Name `xml:"request"`
	WifiSsid   string   `xml:"WifiSsid"`
	WifiWpapsk string   `xml:"WifiWpapsk"`
}

// UpdateWifiSettings rewrites the SSID and passphrase. The passphrase is
// RSA-OAEP encrypted against the device's published key before it goes into
// the POST body; a missing key aborts the update.
func (dev *Device) UpdateWifiSettings(ssid, passphrase string) error {
	key, err := dev.client.FetchPublicKey()
	if err != nil {
		return err
	}
	ciphertext, err := EncryptField(passphrase, key.modulusHex, key.exponentHex)
	if err != nil {
		return err
	}
	body, err := envelope(wifiSettingsRequest{WifiSsid: ssid, WifiWpapsk: ciphertext})
	if err != nil {
		return err
	}
	response, err := dev.client.Post(endpointWlanBasicSettings, string(body))
	if err != nil {
		return err
	}
	if !isOKResponse([]byte(response)) {
		return fmt.Errorf("wlan settings update was not acknowledged")
	}
	return nil
}

type controlRequest struct {
	XMLName xml.Name `xml:"request"`
	Control int      `xml:"Control"`
}

// Reboot restarts the router.
func (dev *Device) Reboot() error {
	body, err := envelope(controlRequest{Control: 1})
	if err != nil {
		return err
	}
	response, err := dev.client.Post(endpointControl, string(body))
	if err != nil {
		return err
	}
	if !isOKResponse([]byte(response)) {
		return fmt.Errorf("reboot was not acknowledged")
	}
	return nil
}
