package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("webhook events", func(t *testing.T) {
		before := testutil.ToFloat64(webhookEvents.WithLabelValues(OutcomeDuplicate))

		WebhookEvent(OutcomeDuplicate)

		require.Equal(t, before+1, testutil.ToFloat64(webhookEvents.WithLabelValues(OutcomeDuplicate)))
	})

	t.Run("settled cents", func(t *testing.T) {
		platform := testutil.ToFloat64(settledCents.WithLabelValues("platform"))
		seller := testutil.ToFloat64(settledCents.WithLabelValues("seller"))

		OrderSettled(1000, 9000)

		require.Equal(t, platform+1000, testutil.ToFloat64(settledCents.WithLabelValues("platform")))
		require.Equal(t, seller+9000, testutil.ToFloat64(settledCents.WithLabelValues("seller")))
	})

	t.Run("transfer duration", func(t *testing.T) {
		TransferObserved(OutcomeSuccess, time.Now())

		require.Positive(t, testutil.CollectAndCount(transferDuration))
	})

	t.Run("http requests", func(t *testing.T) {
		HTTPRequest("GET /api/seller/balance", 200, time.Now())

		require.Positive(t, testutil.CollectAndCount(httpDuration))
	})
}
