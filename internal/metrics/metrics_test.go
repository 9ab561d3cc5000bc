package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveDelivery(t *testing.T) {
	before := testutil.ToFloat64(deliveriesTotal.WithLabelValues("acknowledged"))
	ObserveDelivery("acknowledged")
	assert.Equal(t, before+1, testutil.ToFloat64(deliveriesTotal.WithLabelValues("acknowledged")))
}

func TestObserveStage(t *testing.T) {
	before := testutil.ToFloat64(stageFailuresTotal.WithLabelValues("upload"))

	ObserveStage("upload", time.Now(), nil)
	assert.Equal(t, before, testutil.ToFloat64(stageFailuresTotal.WithLabelValues("upload")))

	ObserveStage("upload", time.Now(), errors.New("503"))
	assert.Equal(t, before+1, testutil.ToFloat64(stageFailuresTotal.WithLabelValues("upload")))
}

func TestTrackInFlight(t *testing.T) {
	base := testutil.ToFloat64(inFlight)
	done := TrackInFlight()
	assert.Equal(t, base+1, testutil.ToFloat64(inFlight))
	done()
	assert.Equal(t, base, testutil.ToFloat64(inFlight))
}

func TestObservePublish(t *testing.T) {
	okBefore := testutil.ToFloat64(publishedTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(publishedTotal.WithLabelValues("error"))

	ObservePublish(nil)
	ObservePublish(errors.New("closed"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(publishedTotal.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(publishedTotal.WithLabelValues("error")))
}
