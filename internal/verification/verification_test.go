package verification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ipvote/internal/storage/memory"
)

func TestCaptchaCacheValidate(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.UnixMilli(2000000000000)

	fresh := now.Add(-time.Hour).UnixMilli()
	stale := now.Add(-CaptchaTTL - time.Hour).UnixMilli()
	body := fmt.Sprintf("ip,token,timestamp\n1.2.3.4,tok1,%d\n5.6.7.8,tok2,%d\nbroken\n", fresh, stale)
	require.NoError(t, store.Put(ctx, CaptchaKey, []byte(body)))

	c := NewCaptchaCache(store)
	c.now = func() time.Time { return now }

	ok, err := c.Validate(ctx, "1.2.3.4", "tok1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Vencido
	ok, _ = c.Validate(ctx, "5.6.7.8", "tok2")
	assert.False(t, ok)

	// Token de otra IP
	ok, _ = c.Validate(ctx, "9.9.9.9", "tok1")
	assert.False(t, ok)

	// Cache ausente degrada a false sin error
	ok, err = NewCaptchaCache(memory.New()).Validate(ctx, "1.2.3.4", "tok1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCaptchaCacheRecord(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	c := NewCaptchaCache(store)

	require.NoError(t, c.Record(ctx, "1.2.3.4", "tok1"))
	ok, err := c.Validate(ctx, "1.2.3.4", "tok1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPhoneVerifierValidate(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.UnixMilli(2000000000000)

	fresh := now.Add(-24 * time.Hour).UnixMilli()
	stale := now.Add(-PhoneTTL - time.Hour).UnixMilli()
	body := fmt.Sprintf("time,phone,token\n%d,+4915112345678,abc\n%d,+4915100000000,old\n", fresh, stale)
	require.NoError(t, store.Put(ctx, PhoneKey, []byte(body)))

	p := NewPhoneVerifier(store)
	p.now = func() time.Time { return now }

	ok, err := p.Validate(ctx, "+4915112345678", "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = p.Validate(ctx, "+4915100000000", "old")
	assert.False(t, ok)

	ok, _ = p.Validate(ctx, "+4915112345678", "wrong")
	assert.False(t, ok)
}

func TestPhoneVerifierRecord(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	p := NewPhoneVerifier(store)

	require.NoError(t, p.Record(ctx, "+4915112345678", "abc"))
	ok, err := p.Validate(ctx, "+4915112345678", "abc")
	require.NoError(t, err)
	assert.True(t, ok)
}
