package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFuture_FiresWhenWaitGroupDrains(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	f := JoinWaitGroups(&wg)
	select {
	case <-f.Done():
		t.Fatal("future fired before WaitGroup drained")
	default:
	}

	wg.Done()
	assert.NoError(t, f.Await(context.Background()))
}

func TestFuture_AwaitRespectsContextCancellation(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	defer wg.Done()

	f := JoinWaitGroups(&wg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, f.Await(ctx), context.DeadlineExceeded)
}

func TestJoin_WaitsForAllFutures(t *testing.T) {
	var wg1, wg2 sync.WaitGroup
	wg1.Add(1)
	wg2.Add(1)

	go func() {
		time.Sleep(5 * time.Millisecond)
		wg1.Done()
		wg2.Done()
	}()

	err := Join(context.Background(), JoinWaitGroups(&wg1), JoinWaitGroups(&wg2))
	assert.NoError(t, err)
}

func TestNewFutureFromChan_FiresWhenChanCloses(t *testing.T) {
	done := make(chan struct{})
	f := NewFutureFromChan(done)

	close(done)
	assert.NoError(t, f.Await(context.Background()))
}

func TestNewFutureFromResult_CarriesTheStoredError(t *testing.T) {
	done := make(chan struct{})
	var result error
	f := NewFutureFromResult(done, &result)

	result = assert.AnError
	close(done)

	assert.ErrorIs(t, f.Await(context.Background()), assert.AnError)
}

func TestNewFutureFromResult_NilErrorFiresClean(t *testing.T) {
	done := make(chan struct{})
	var result error
	f := NewFutureFromResult(done, &result)

	close(done)

	assert.NoError(t, f.Await(context.Background()))
}
