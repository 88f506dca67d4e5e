package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.CapabilityCall("http", "ok")
	c.DelegateCall("ok")
	c.Invocation("query", "ok", time.Millisecond)
	assert.Nil(t, c.Registry())
}

func TestCounters(t *testing.T) {
	c := NewCollector("")
	c.CapabilityCall("http", "ok")
	c.CapabilityCall("http", "ok")
	c.DelegateCall("unavailable")
	c.Invocation("transact", "aborted", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.CapabilityCounter("http", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DelegateCounter("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.InvocationCounter("transact", "aborted")))
}

func TestHandler(t *testing.T) {
	c := NewCollector("test")
	c.DelegateCall("ok")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "test_delegate_calls_total"))
}
