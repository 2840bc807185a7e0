package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTokenSignalRunsCallbacksInOrder(t *testing.T) {
	token := NewToken()
	var order []int
	token.OnCancel(func() { order = append(order, 1) })
	token.OnCancel(func() { order = append(order, 2) })

	assert.False(t, token.IsCancelled())
	token.Signal()

	assert.True(t, token.IsCancelled())
	assert.Equal(t, []int{1, 2}, order)
	select {
	case <-token.Done():
	default:
		t.Fatal("Done channel not closed after Signal")
	}
}

func TestTokenLateRegistrationRunsImmediately(t *testing.T) {
	token := NewToken()
	token.Signal()

	ran := false
	stop := token.OnCancel(func() { ran = true })

	assert.True(t, ran, "callback registered after fire must run synchronously")
	assert.False(t, stop(), "nothing to unregister after fire")
}

func TestTokenStopUnregisters(t *testing.T) {
	token := NewToken()
	ran := false
	stop := token.OnCancel(func() { ran = true })

	require.True(t, stop())
	token.Signal()
	assert.False(t, ran)
	assert.Equal(t, 0, token.pending())
}

func TestTokenContextCause(t *testing.T) {
	token := NewToken()
	ctx, cancel := token.Context(context.Background())
	defer cancel()

	require.NoError(t, ctx.Err())
	token.Signal()

	<-ctx.Done()
	assert.True(t, errors.Is(context.Cause(ctx), ErrTornDown))
}

func TestTokenContextReleaseBeforeFire(t *testing.T) {
	token := NewToken()
	_, cancel := token.Context(context.Background())
	require.Equal(t, 1, token.pending())

	cancel()
	assert.Equal(t, 0, token.pending())
}

func TestScopeDestroyLogsAndFires(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	scope := NewScope("feature1", zap.New(core))

	sub := Interval(tick).TakeUntil(scope.Token()).Subscribe(func(int) {})
	scope.Track(sub)

	scope.Destroy()
	<-sub.Done()

	assert.True(t, scope.Token().IsCancelled())
	entries := logs.FilterMessage("unit destroyed, subscriptions cancelled").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "feature1", entries[0].ContextMap()["unit"])
}
