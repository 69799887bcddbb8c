package limited

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/time/rate"
)

func TestReaderPassesThroughBytes(t *testing.T) {
	limiter := rate.NewLimiter(rate.Inf, 0)
	r := NewReader(context.Background(), strings.NewReader("hello world"), limiter)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestReaderThrottles(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(1024), 1024)
	r := NewReader(context.Background(), strings.NewReader(strings.Repeat("x", 4096)), limiter)

	start := time.Now()
	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Greater(t, time.Since(start), 2*time.Second)
}

func TestNewLimiterZeroMeansUnlimited(t *testing.T) {
	limiter := NewLimiter(0)
	assert.Equal(t, rate.Inf, limiter.Limit())
}

func TestPerWorkerDividesEvenly(t *testing.T) {
	assert.Equal(t, 25, PerWorker(100, 4))
	assert.Equal(t, 1, PerWorker(1, 4))
	assert.Equal(t, 100, PerWorker(100, 0))
}
