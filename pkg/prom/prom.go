package prom

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	xhttp "github.com/samueldng/cash-back-phone-link/pkg/http"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemLedger        = "ledger"
	SystemNotifications = "notification"
)

const (
	MetricPurchasesTotal         = "purchases_total"
	MetricCashbackAccruedTotal   = "cashback_accrued_total"
	MetricRedemptionsTotal       = "redemptions_total"
	MetricCashbackRedeemedTotal  = "cashback_redeemed_total"
	MetricLedgerErrorsTotal      = "errors_total"
	MetricOperationDuration      = "operation_duration_seconds"
	MetricNotificationsTotal     = "dispatched_total"
	MetricNotificationsDelivered = "delivered_total"
	MetricQueuePending           = "queue_pending"
)

const (
	TypeCounter      = "counter"
	TypeCounterVec   = "counterVec"
	TypeHistogramVec = "histogramVec"
	TypeGaugeVec     = "gaugeVec"
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounters = make(map[string]prometheus.Counter)
var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionGaugeVec = make(map[string]*prometheus.GaugeVec)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounterVec(SystemLedger, MetricPurchasesTotal, []string{"eligible"}))
	hasError(createCounter(SystemLedger, MetricCashbackAccruedTotal))
	hasError(createCounter(SystemLedger, MetricRedemptionsTotal))
	hasError(createCounter(SystemLedger, MetricCashbackRedeemedTotal))
	hasError(createCounterVec(SystemLedger, MetricLedgerErrorsTotal, []string{"operation", "kind"}))
	hasError(createHistogramVec(SystemLedger, MetricOperationDuration, []string{"operation"}))
	hasError(createCounterVec(SystemNotifications, MetricNotificationsTotal, []string{"kind", "status"}))
	hasError(createCounterVec(SystemNotifications, MetricNotificationsDelivered, []string{"kind", "status"}))
	hasError(createGaugeVec(SystemNotifications, MetricQueuePending, []string{"queue"}))

	return err
}

func CreateMetric(metricType, metricSubsystem, metricName string, labelsValues ...string) error {
	switch metricType {
	case TypeCounter:
		return createCounter(metricSubsystem, metricName)
	case TypeCounterVec:
		return createCounterVec(metricSubsystem, metricName, labelsValues)
	case TypeHistogramVec:
		return createHistogramVec(metricSubsystem, metricName, labelsValues)
	case TypeGaugeVec:
		return createGaugeVec(metricSubsystem, metricName, labelsValues)
	}
	return fmt.Errorf("metric type %s is not defined", metricType)
}

func ListenAndServer(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func createCounter(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionCounters[subsystem+name] = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	})
	return prometheus.Register(MetricCollectionCounters[subsystem+name])
}

func createCounterVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionCounterVec[subsystem+name] = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionCounterVec[subsystem+name])
}

func createHistogramVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionHistogramVec[subsystem+name] = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionHistogramVec[subsystem+name])
}

func createGaugeVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()

	MetricCollectionGaugeVec[subsystem+name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionGaugeVec[subsystem+name])
}

func IncCounter(subsystem, name string) {
	AddCounter(subsystem, name, 1)
}

func AddCounter(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounters[subsystem+name]; ok {
		v.Add(number)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

func AddPurchase(eligible bool, accrued float64) {
	label := "false"
	if eligible {
		label = "true"
	}
	IncCounterVec(SystemLedger, MetricPurchasesTotal, label)
	AddCounter(SystemLedger, MetricCashbackAccruedTotal, accrued)
}

func AddRedemption(amount float64) {
	IncCounter(SystemLedger, MetricRedemptionsTotal)
	AddCounter(SystemLedger, MetricCashbackRedeemedTotal, amount)
}

func AddLedgerError(operation, kind string) {
	IncCounterVec(SystemLedger, MetricLedgerErrorsTotal, operation, kind)
}

func AddOperationDuration(operation string, seconds float64) {
	AddHistogramVec(SystemLedger, MetricOperationDuration, seconds, operation)
}

func AddNotificationDispatched(kind, status string) {
	IncCounterVec(SystemNotifications, MetricNotificationsTotal, kind, status)
}

func AddNotificationDelivered(kind, status string) {
	IncCounterVec(SystemNotifications, MetricNotificationsDelivered, kind, status)
}

func SetQueuePending(queue string, pending float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionGaugeVec[SystemNotifications+MetricQueuePending]; ok {
		v.WithLabelValues(queue).Set(pending)
	}
}
