package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpersAreNoopsWhenDisabled(t *testing.T) {
	MetricSystemEnabled = false
	assert.NotPanics(t, func() {
		AddPurchase(true, 5)
		AddRedemption(15)
		SetQueuePending("q", 3)
	})
}

// Create registers on the default registry, so it runs once per process.
func TestCreateAndRecord(t *testing.T) {
	require.NoError(t, Create("test-host", "test", "cashback"))
	t.Cleanup(func() { MetricSystemEnabled = false })

	AddPurchase(true, 5)
	AddPurchase(false, 0)
	AddPurchase(true, 16.67)
	AddRedemption(15)
	AddLedgerError(opLabel, "validation")
	AddNotificationDispatched("earned", "queued")
	SetQueuePending("cashback:notifications", 7)

	purchases := MetricCollectionCounterVec[SystemLedger+MetricPurchasesTotal]
	assert.Equal(t, 2.0, testutil.ToFloat64(purchases.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(purchases.WithLabelValues("false")))
	assert.InDelta(t, 21.67, testutil.ToFloat64(MetricCollectionCounters[SystemLedger+MetricCashbackAccruedTotal]), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(MetricCollectionCounters[SystemLedger+MetricRedemptionsTotal]))
	assert.Equal(t, 15.0, testutil.ToFloat64(MetricCollectionCounters[SystemLedger+MetricCashbackRedeemedTotal]))
	assert.Equal(t, 1.0, testutil.ToFloat64(MetricCollectionCounterVec[SystemLedger+MetricLedgerErrorsTotal].WithLabelValues(opLabel, "validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(MetricCollectionCounterVec[SystemNotifications+MetricNotificationsTotal].WithLabelValues("earned", "queued")))
	assert.Equal(t, 7.0, testutil.ToFloat64(MetricCollectionGaugeVec[SystemNotifications+MetricQueuePending].WithLabelValues("cashback:notifications")))

	assert.Error(t, CreateMetric("summary", SystemLedger, "x"))
}

const opLabel = "purchase"
