package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCatalogReload(t *testing.T) {
	okBefore := testutil.ToFloat64(CatalogReloadsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(CatalogReloadsTotal.WithLabelValues("error"))

	RecordCatalogReload(true, 3)
	RecordCatalogReload(false, 99)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(CatalogReloadsTotal.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(CatalogReloadsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(3), testutil.ToFloat64(CatalogProducts), "failed reload keeps the previous size")
}

func TestSubscriberGauge(t *testing.T) {
	before := testutil.ToFloat64(SubscribersActive.WithLabelValues("sse"))
	IncrementSubscribers("sse")
	IncrementSubscribers("sse")
	DecrementSubscribers("sse")
	assert.Equal(t, before+1, testutil.ToFloat64(SubscribersActive.WithLabelValues("sse")))
}

func TestRecordEventPublished(t *testing.T) {
	okBefore := testutil.ToFloat64(EventsPublishedTotal.WithLabelValues("chunk", "ok"))
	errBefore := testutil.ToFloat64(EventsPublishedTotal.WithLabelValues("chunk", "error"))

	RecordEventPublished("chunk", nil)
	RecordEventPublished("chunk", assert.AnError)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(EventsPublishedTotal.WithLabelValues("chunk", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(EventsPublishedTotal.WithLabelValues("chunk", "error")))
}
