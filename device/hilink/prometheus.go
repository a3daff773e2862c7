package hilink

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"routermon/types"
)

type prometheusMetrics struct {
	commonLabels prometheus.Labels

	updateInfoMetric func(status *routerStatus) error

	connectionStatus *prometheus.Gauge
	networkType      *prometheus.Gauge
	signalIcon       *prometheus.Gauge

	signalRsrp *prometheus.Gauge
	signalRsrq *prometheus.Gauge
	signalRssi *prometheus.Gauge
	signalSinr *prometheus.Gauge
	cellId     *prometheus.Gauge

	downloadRate  *prometheus.Gauge
	uploadRate    *prometheus.Gauge
	totalDownload *prometheus.Gauge
	totalUpload   *prometheus.Gauge
	connectTime   *prometheus.Gauge

	wifiEnabled *prometheus.Gauge
	smsUnread   *prometheus.Gauge
	smsInbox    *prometheus.Gauge

	sessionHealthy *prometheus.Gauge
	lastActivity   *prometheus.Gauge
}

func registerMetrics(registry prometheus.Registerer, commonLabels prometheus.Labels) *prometheusMetrics {
	metrics := prometheusMetrics{
		commonLabels: commonLabels,

		updateInfoMetric: registerInfoMetricUpdater(registry, commonLabels),
		connectionStatus: types.NewGauge(registry, commonLabels, "hilink", "connection_status"),
		networkType:      types.NewGauge(registry, commonLabels, "hilink", "network_type"),
		signalIcon:       types.NewGauge(registry, commonLabels, "hilink", "signal_icon"),

		signalRsrp: types.NewGauge(registry, commonLabels, "hilink", "signal_rsrp_dbm"),
		signalRsrq: types.NewGauge(registry, commonLabels, "hilink", "signal_rsrq_db"),
		signalRssi: types.NewGauge(registry, commonLabels, "hilink", "signal_rssi_dbm"),
		signalSinr: types.NewGauge(registry, commonLabels, "hilink", "signal_sinr_db"),
		cellId:     types.NewGauge(registry, commonLabels, "hilink", "cell_id"),

		downloadRate:  types.NewGauge(registry, commonLabels, "hilink", "download_rate_bytes_per_second"),
		uploadRate:    types.NewGauge(registry, commonLabels, "hilink", "upload_rate_bytes_per_second"),
		totalDownload: types.NewGauge(registry, commonLabels, "hilink", "total_download_bytes"),
		totalUpload:   types.NewGauge(registry, commonLabels, "hilink", "total_upload_bytes"),
		connectTime:   types.NewGauge(registry, commonLabels, "hilink", "connect_time_seconds"),

		wifiEnabled: types.NewGauge(registry, commonLabels, "hilink", "wifi_enabled_bool"),
		smsUnread:   types.NewGauge(registry, commonLabels, "hilink", "sms_unread_count"),
		smsInbox:    types.NewGauge(registry, commonLabels, "hilink", "sms_inbox_count"),

		sessionHealthy: types.NewGauge(registry, commonLabels, "hilink", "session_healthy_bool"),
		lastActivity:   types.NewGauge(registry, commonLabels, "hilink", "last_activity_timestamp_seconds"),
	}
	metrics.resetToRogueValues()
	return &metrics
}

// exchangeSucceeded and sessionExpired satisfy the transport's observer
// contract.
func (metrics *prometheusMetrics) exchangeSucceeded(at time.Time) {
	types.SetFromTime(metrics.lastActivity, at)
	types.SetFromBool(metrics.sessionHealthy, true)
}

func (metrics *prometheusMetrics) sessionExpired() {
	types.SetFromBool(metrics.sessionHealthy, false)
}

func (metrics *prometheusMetrics) updateMetrics(status *routerStatus) error {
	if status == nil {
		metrics.resetToRogueValues()
		return nil
	}
	types.SetFromInt(metrics.connectionStatus, status.ConnectionStatus)
	types.SetFromInt(metrics.networkType, status.NetworkType)
	types.SetFromInt(metrics.signalIcon, status.SignalIcon)
	if status.signalInfo != nil {
		types.SetFromInt(metrics.signalRsrp, status.Rsrp)
		types.SetFromInt(metrics.signalRsrq, status.Rsrq)
		types.SetFromInt(metrics.signalRssi, status.Rssi)
		types.SetFromInt(metrics.signalSinr, status.Sinr)
		types.SetFromInt(metrics.cellId, status.CellId)
	}
	if status.trafficInfo != nil {
		types.SetFromInt(metrics.downloadRate, status.DownloadRate)
		types.SetFromInt(metrics.uploadRate, status.UploadRate)
		types.SetFromInt(metrics.totalDownload, status.TotalDownload)
		types.SetFromInt(metrics.totalUpload, status.TotalUpload)
		types.SetFromInt(metrics.connectTime, status.ConnectTime)
	}
	if status.wifiInfo != nil {
		types.SetFromBool(metrics.wifiEnabled, status.wifiInfo.Enabled)
	}
	if status.smsInfo != nil {
		types.SetFromInt(metrics.smsUnread, status.UnreadCount)
		types.SetFromInt(metrics.smsInbox, status.InboxCount)
	}
	if err := metrics.updateInfoMetric(status); err != nil {
		return fmt.Errorf("could not update info metric: %w", err)
	}
	return nil
}

func (metrics *prometheusMetrics) resetToRogueValues() {
	_ = metrics.updateInfoMetric(nil)
	types.SetIfPresent(metrics.connectionStatus, -1.0)
	types.SetIfPresent(metrics.networkType, -1.0)
	types.SetIfPresent(metrics.signalIcon, -1.0)
	types.SetIfPresent(metrics.signalRsrp, +1.0) // nb: positive rogue value
	types.SetIfPresent(metrics.signalRsrq, +1.0)
	types.SetIfPresent(metrics.signalRssi, +1.0)
	types.SetIfPresent(metrics.signalSinr, -999.0)
	types.SetIfPresent(metrics.cellId, -1.0)
	types.SetIfPresent(metrics.downloadRate, -1.0)
	types.SetIfPresent(metrics.uploadRate, -1.0)
	types.SetIfPresent(metrics.totalDownload, -1.0)
	types.SetIfPresent(metrics.totalUpload, -1.0)
	types.SetIfPresent(metrics.connectTime, -1.0)
	types.SetIfPresent(metrics.wifiEnabled, -1.0)
	types.SetIfPresent(metrics.smsUnread, -1.0)
	types.SetIfPresent(metrics.smsInbox, -1.0)
	types.SetIfPresent(metrics.sessionHealthy, -1.0)
	types.SetIfPresent(metrics.lastActivity, -1.0)
}

func registerInfoMetricUpdater(registry prometheus.Registerer, commonLabels prometheus.Labels) func(status *routerStatus) error {
	var infoMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "router_info",
		Namespace:   "hilink",
		ConstLabels: commonLabels,
	}, []string{
		"device_name", "serial_number", "imei", "hardware_version", "software_version", "work_mode", "wifi_ssid",
	})
	registry.MustRegister(infoMetric)
	return func(status *routerStatus) error {
		infoMetric.Reset()
		if status != nil {
			ssid := ""
			if status.wifiInfo != nil {
				ssid = status.wifiInfo.Ssid
			}
			metricWithLabelValues, err := infoMetric.GetMetricWith(prometheus.Labels{
				"device_name":      status.DeviceName,
				"serial_number":    status.SerialNumber,
				"imei":             status.Imei,
				"hardware_version": status.HardwareVersion,
				"software_version": status.SoftwareVersion,
				"work_mode":        status.WorkMode,
				"wifi_ssid":        ssid,
			})
			if err != nil {
				return fmt.Errorf("could not generate label values for info metric: %w", err)
			}
			metricWithLabelValues.Set(1.0)
		}
		return nil
	}
}
