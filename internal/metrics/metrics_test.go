package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/serroba/admission/internal/metrics"
	"github.com/serroba/admission/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Run("counts decisions by outcome", func(t *testing.T) {
		c, err := metrics.NewCollector()
		require.NoError(t, err)

		c.ObserveDecision(ratelimit.AlgorithmFixedWindow, ratelimit.Decision{Success: true, ConsumedPoints: 2}, time.Millisecond)
		c.ObserveDecision(ratelimit.AlgorithmFixedWindow, ratelimit.Decision{Success: false}, time.Millisecond)
		c.ObserveDecision(ratelimit.AlgorithmFixedWindow, ratelimit.Decision{Success: true, ConsumedPoints: 1}, time.Millisecond)

		families, err := c.Registry().Gather()
		require.NoError(t, err)

		values := map[string]float64{}

		for _, f := range families {
			for _, m := range f.GetMetric() {
				if f.GetName() == "ratelimit_decisions_total" {
					values[m.GetLabel()[1].GetValue()] = m.GetCounter().GetValue()
				}

				if f.GetName() == "ratelimit_consumed_points_total" {
					values["points"] = m.GetCounter().GetValue()
				}
			}
		}

		assert.InDelta(t, 2.0, values["allowed"], 0)
		assert.InDelta(t, 1.0, values["denied"], 0)
		assert.InDelta(t, 3.0, values["points"], 0)
	})

	t.Run("classifies errors", func(t *testing.T) {
		c, err := metrics.NewCollector()
		require.NoError(t, err)

		storeErr := &ratelimit.StoreError{Op: "update", Key: "k", Err: errors.New("boom")}
		conflict := &ratelimit.StoreError{Op: "update", Key: "k", Err: fmt.Errorf("%w: retries", ratelimit.ErrConflict)}
		timeout := &ratelimit.StoreError{Op: "update", Key: "k", Err: context.DeadlineExceeded}

		c.ObserveError(ratelimit.AlgorithmTokenBucket, storeErr)
		c.ObserveError(ratelimit.AlgorithmTokenBucket, conflict)
		c.ObserveError(ratelimit.AlgorithmTokenBucket, timeout)

		count, err := testutil.GatherAndCount(c.Registry(), "ratelimit_errors_total")

		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}
