package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialContextReturnsResult(t *testing.T) {
	v, err := dialContext(context.Background(),
		func() (int, error) { return 7, nil },
		func(int) { t.Error("drop called for a delivered result") })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = dialContext(context.Background(),
		func() (int, error) { return 0, errMockConnect },
		func(int) {})
	assert.ErrorIs(t, err, errMockConnect)
}

func TestDialContextDropsLateSuccess(t *testing.T) {
	release := make(chan struct{})
	dropped := make(chan int, 1)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := dialContext(ctx,
			func() (int, error) {
				<-release
				return 42, nil
			},
			func(v int) { dropped <- v })
		errc <- err
	}()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dialContext did not return after cancel")
	}

	close(release)
	select {
	case v := <-dropped:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("late connection was not dropped")
	}
}

func TestDialContextIgnoresLateFailure(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dialContext(ctx,
		func() (int, error) {
			defer close(done)
			<-release
			return 0, errors.New("timeout")
		},
		func(int) { t.Error("drop called for a failed dial") })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
	time.Sleep(10 * time.Millisecond)
}
