package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	v     Verdict
	err   error
	delay time.Duration
}

func (f fakeChecker) Check(ctx context.Context, clientAddress string) (Verdict, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Timeout, ctx.Err()
		}
	}
	return f.v, f.err
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "CLEAN", Clean.String())
	assert.Equal(t, "SUSPICIOUS", Suspicious.String())
	assert.Equal(t, "TIMEOUT", Timeout.String())
	assert.Equal(t, "ERROR", Error.String())
	assert.Equal(t, "UNKNOWN", Verdict(99).String())
}

func TestNullCheckerReturnsNotConfigured(t *testing.T) {
	v, err := NullChecker{}.Check(context.Background(), "1.2.3.4")
	assert.Equal(t, Error, v)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWithTimeoutPassesThroughFastResult(t *testing.T) {
	c := WithTimeout(fakeChecker{v: Suspicious}, 50*time.Millisecond)
	v, err := c.Check(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, Suspicious, v)
}

func TestWithTimeoutExpiresSlowChecker(t *testing.T) {
	c := WithTimeout(fakeChecker{v: Clean, delay: 200 * time.Millisecond}, 20*time.Millisecond)
	v, err := c.Check(context.Background(), "1.2.3.4")
	assert.Equal(t, Timeout, v)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeoutPropagatesError(t *testing.T) {
	want := errors.New("boom")
	c := WithTimeout(fakeChecker{v: Error, err: want}, time.Second)
	v, err := c.Check(context.Background(), "1.2.3.4")
	assert.Equal(t, Error, v)
	assert.ErrorIs(t, err, want)
}

func TestReverseQuery(t *testing.T) {
	q, err := reverseQuery("192.0.2.5", "zen.spamhaus.org")
	require.NoError(t, err)
	assert.Equal(t, "5.2.0.192.zen.spamhaus.org", q)
}

func TestReverseQueryRejectsInvalidAddress(t *testing.T) {
	_, err := reverseQuery("not-an-ip", "zen.spamhaus.org")
	assert.Error(t, err)
}

func TestReverseQueryRejectsIPv6(t *testing.T) {
	_, err := reverseQuery("2001:db8::1", "zen.spamhaus.org")
	assert.Error(t, err)
}

func TestDNSBLCheckerUnresolvableNameIsNotSuspicious(t *testing.T) {
	// The query name lies under a zone that does not exist, so it never
	// resolves: with a reachable resolver the answer is NXDOMAIN (Clean),
	// without one the lookup fails (Error or Timeout). In no case may the
	// checker report Suspicious.
	d := NewDNSBLChecker("invalid.example.")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := d.Check(ctx, "192.0.2.1")
	assert.Contains(t, []Verdict{Clean, Error, Timeout}, v)
	_ = err
}

func TestDNSBLCheckerRejectsBadAddress(t *testing.T) {
	d := NewDNSBLChecker("zen.spamhaus.org")
	v, err := d.Check(context.Background(), "garbage")
	assert.Equal(t, Error, v)
	assert.Error(t, err)
}

func TestParseVerdict(t *testing.T) {
	v, ok := parseVerdict("CLEAN")
	assert.True(t, ok)
	assert.Equal(t, Clean, v)

	v, ok = parseVerdict("SUSPICIOUS")
	assert.True(t, ok)
	assert.Equal(t, Suspicious, v)

	_, ok = parseVerdict("garbage")
	assert.False(t, ok)
}
