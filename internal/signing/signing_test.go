package signing

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner(t *testing.T) {
	t.Parallel()

	s := NewSigner([]byte("topsecret"))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	sig := s.Sign("1/2/a.pdf", 1700000060)
	require.NotEmpty(t, sig)

	assert.True(t, s.Validate("1/2/a.pdf", "1700000060", sig))
	assert.False(t, s.Validate("1/2/b.pdf", "1700000060", sig), "wrong key")
	assert.False(t, s.Validate("1/2/a.pdf", "1700000061", sig), "wrong expiry")
	assert.False(t, s.Validate("1/2/a.pdf", "soon", sig), "malformed expiry")
	assert.False(t, NewSigner([]byte("other")).Validate("1/2/a.pdf", "1700000060", sig), "wrong secret")
}

func TestSigner_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	s := NewSigner([]byte("topsecret"))
	s.now = func() time.Time { return now }

	q := s.Query("k", time.Minute)
	assert.Equal(t, strconv.FormatInt(now.Add(time.Minute).Unix(), 10), q.Get(ParamExpires))
	require.True(t, s.Validate("k", q.Get(ParamExpires), q.Get(ParamSignature)))

	now = now.Add(61 * time.Second)
	assert.False(t, s.Validate("k", q.Get(ParamExpires), q.Get(ParamSignature)))
}
