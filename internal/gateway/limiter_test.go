package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiterDisabled(t *testing.T) {
	l := newIPRateLimiter(0, 0)
	for range 100 {
		assert.True(t, l.allow("10.0.0.1:1234"))
	}
	assert.Equal(t, 0, l.size())
}

func TestIPRateLimiterBurst(t *testing.T) {
	l := newIPRateLimiter(0.001, 3)
	for i := range 3 {
		assert.True(t, l.allow("10.0.0.1:1234"), "request %d", i)
	}
	assert.False(t, l.allow("10.0.0.1:5555"), "same host, different port")
	assert.True(t, l.allow("10.0.0.2:1234"), "other hosts have their own bucket")
}

func TestIPRateLimiterCleanup(t *testing.T) {
	l := newIPRateLimiter(1, 1)
	l.allow("10.0.0.1:1")
	l.allow("10.0.0.2:1")
	assert.Equal(t, 2, l.size())

	assert.Equal(t, 0, l.cleanup(time.Now()))
	assert.Equal(t, 2, l.cleanup(time.Now().Add(limiterIdleTTL+time.Second)))
	assert.Equal(t, 0, l.size())
}

func TestIPRateLimiterCapsTrackedHosts(t *testing.T) {
	l := newIPRateLimiter(1, 1)
	for i := range limiterMaxIPs + 10 {
		l.allow(fmt.Sprintf("10.%d.%d.%d:1", i>>16&0xff, i>>8&0xff, i&0xff))
	}
	assert.Equal(t, limiterMaxIPs, l.size())
}

func TestClientHost(t *testing.T) {
	assert.Equal(t, "10.0.0.1", clientHost("10.0.0.1:8080"))
	assert.Equal(t, "::1", clientHost("[::1]:8080"))
	assert.Equal(t, "10.0.0.1", clientHost("10.0.0.1"))
}
