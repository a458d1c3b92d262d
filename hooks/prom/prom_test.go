package promhooks

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersTrackEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg)
	require.NoError(t, err)

	h.FetchStarted(`["posts"]`)
	h.FetchStarted(`["todos"]`)
	h.FetchShared(`["posts"]`)
	h.FetchFailed(`["todos"]`, errors.New("boom"))
	h.FetchDiscarded(`["posts"]`, "invalidated")
	h.Invalidated(`["posts"]`, 3)
	h.MutationRolledBack("id", `["todos"]`, errors.New("offline"))
	h.EntryCollected(`["posts",1]`)
	h.SelfHeal("all", "expired")
	h.SelfHeal("all", "expired")
	h.SetRejected("all")

	assert.Equal(t, 2.0, testutil.ToFloat64(h.fetches.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.fetches.WithLabelValues("shared")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.fetches.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.discarded.WithLabelValues("invalidated")))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.invalidated))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.rollbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.collected))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.selfHeal.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.rejected))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 9, n) // 3 fetch events + 1 discard reason + 1 heal reason + 4 plain counters
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
