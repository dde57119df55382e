package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("plan-1")
			defer m.Unlock("plan-1")

			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Equal(t, 0, m.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	m.Lock("a")
	defer m.Unlock("a")

	done := make(chan struct{})
	go func() {
		m.Lock("b")
		m.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutexTryLock(t *testing.T) {
	m := NewKeyedMutex()

	require.True(t, m.TryLock("plan-1"))
	assert.False(t, m.TryLock("plan-1"))
	m.Unlock("plan-1")
	assert.True(t, m.TryLock("plan-1"))
	m.Unlock("plan-1")
	assert.Equal(t, 0, m.Len())

	// Unlocking an unknown key is harmless.
	m.Unlock("missing")
}

func TestSafeCallRecoversPanic(t *testing.T) {
	var recovered interface{}
	err := SafeCall(func() { panic("boom") }, func(r interface{}) { recovered = r })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "boom", recovered)

	assert.NoError(t, SafeCall(func() {}, nil))
}

func TestSafeGoRecoversPanic(t *testing.T) {
	got := make(chan interface{}, 1)
	SafeGo(func() { panic("async") }, func(r interface{}) { got <- r })

	select {
	case r := <-got:
		assert.Equal(t, "async", r)
	case <-time.After(time.Second):
		t.Fatal("panic handler not called")
	}
}
