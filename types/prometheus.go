package types

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func GenerateCommonLabels(router *RouterConfig) map[string]string {
	return map[string]string{
		"router_site":      router.Site,
		"router_name":      router.Name,
		"router_ip":        router.Ip,
		"router_full_name": strings.TrimSpace(router.Site + " " + router.Name),
	}
}

func NewGauge(registry prometheus.Registerer, commonLabels prometheus.Labels, ns, name string) *prometheus.Gauge {
	var gauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: name, ConstLabels: commonLabels, Namespace: ns})
	registry.MustRegister(gauge)
	return &gauge
}

func SetIfPresent(gauge *prometheus.Gauge, value float64) {
	if gauge != nil {
		(*gauge).Set(value)
	}
}

func SetFromBool(gauge *prometheus.Gauge, value bool) {
	if value {
		SetIfPresent(gauge, 1.0)
	} else {
		SetIfPresent(gauge, 0.0)
	}
}

func SetFromInt(gauge *prometheus.Gauge, value int) {
	SetIfPresent(gauge, float64(value))
}

func SetFromTime(gauge *prometheus.Gauge, value time.Time) {
	SetIfPresent(gauge, float64(value.Unix()))
}
