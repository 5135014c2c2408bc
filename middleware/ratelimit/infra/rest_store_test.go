package infra

import (
	"context"
	"net/http"
	"testing"
	"time"

	"admission-gateway/internal/kvtest"
	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTCounterStore_IncrReturnsSequentialValues(t *testing.T) {
	kv := kvtest.NewServer(t, "secret")
	s := NewRESTCounterStore(kv.URL, "secret")

	for want := int64(1); want <= 3; want++ {
		got, err := s.Incr(context.Background(), "rl:auth:1.2.3.4:42")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, int64(3), kv.Counter("rl:auth:1.2.3.4:42"))
}

func TestRESTCounterStore_PercentEncodesArguments(t *testing.T) {
	kv := kvtest.NewServer(t, "secret")
	s := NewRESTCounterStore(kv.URL+"/", "secret")

	_, err := s.Incr(context.Background(), "rl:auth:a/b c")
	require.NoError(t, err)

	calls := kv.CallsFor("incr")
	require.Len(t, calls, 1)
	assert.Equal(t, "incr/rl%3Aauth%3Aa%2Fb%20c", calls[0].RawPath)
	assert.Equal(t, []string{"rl:auth:a/b c"}, calls[0].Args)
}

func TestRESTCounterStore_ExpireSendsSecondsRoundedUp(t *testing.T) {
	kv := kvtest.NewServer(t, "secret")
	s := NewRESTCounterStore(kv.URL, "secret")

	_, err := s.Incr(context.Background(), "k")
	require.NoError(t, err)
	require.NoError(t, s.Expire(context.Background(), "k", 1500*time.Millisecond))

	ttl, ok := kv.TTL("k")
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, ttl)
}

func TestRESTCounterStore_FailuresAreUnavailable(t *testing.T) {
	cases := []struct {
		name  string
		setup func(kv *kvtest.Server) *RESTCounterStore
	}{
		{
			name: "bad token",
			setup: func(kv *kvtest.Server) *RESTCounterStore {
				return NewRESTCounterStore(kv.URL, "wrong")
			},
		},
		{
			name: "server error",
			setup: func(kv *kvtest.Server) *RESTCounterStore {
				kv.Fail(http.StatusInternalServerError)
				return NewRESTCounterStore(kv.URL, "secret")
			},
		},
		{
			name: "malformed json",
			setup: func(kv *kvtest.Server) *RESTCounterStore {
				kv.Reply(`{"result":`)
				return NewRESTCounterStore(kv.URL, "secret")
			},
		},
		{
			name: "non integer result",
			setup: func(kv *kvtest.Server) *RESTCounterStore {
				kv.Reply(`{"result":"OK"}`)
				return NewRESTCounterStore(kv.URL, "secret")
			},
		},
		{
			name: "error field",
			setup: func(kv *kvtest.Server) *RESTCounterStore {
				kv.Reply(`{"error":"WRONGTYPE"}`)
				return NewRESTCounterStore(kv.URL, "secret")
			},
		},
		{
			name: "missing result",
			setup: func(kv *kvtest.Server) *RESTCounterStore {
				kv.Reply(`{}`)
				return NewRESTCounterStore(kv.URL, "secret")
			},
		},
		{
			name: "unreachable",
			setup: func(kv *kvtest.Server) *RESTCounterStore {
				return NewRESTCounterStore("http://127.0.0.1:1", "secret")
			},
		},
		{
			name: "not configured",
			setup: func(kv *kvtest.Server) *RESTCounterStore {
				return NewRESTCounterStore("", "")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kv := kvtest.NewServer(t, "secret")
			s := tc.setup(kv)

			_, err := s.Incr(context.Background(), "k")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnavailable)
		})
	}
}

func TestRESTCounterStore_StringResultIsAccepted(t *testing.T) {
	kv := kvtest.NewServer(t, "secret")
	kv.Reply(`{"result":"7"}`)
	s := NewRESTCounterStore(kv.URL, "secret")

	n, err := s.Incr(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestRESTCounterStore_TimeoutIsUnavailable(t *testing.T) {
	kv := kvtest.NewServer(t, "secret")
	kv.SetDelay(200 * time.Millisecond)
	s := NewRESTCounterStore(kv.URL, "secret", WithCallTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := s.Incr(context.Background(), "k")
	require.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
