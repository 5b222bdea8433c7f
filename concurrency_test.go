package sysvipc

import (
	"sync"
	"testing"
)

// TestBufferPoolConcurrent tests that BufferPool is safe for concurrent access.
func TestBufferPoolConcurrent(t *testing.T) {
	pool := NewBufferPool(MaxMessageSize, 10)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := pool.Get()
				if len(buf) != MaxMessageSize {
					t.Errorf("Expected buffer length %d, got %d", MaxMessageSize, len(buf))
				}
				buf[0] = byte(j)
				pool.Put(buf)
			}
		}()
	}
	wg.Wait()
}

// TestBufferPoolGetPutConcurrent tests concurrent Get and Put operations.
func TestBufferPoolGetPutConcurrent(t *testing.T) {
	pool := NewBufferPool(512, 5)

	var wg sync.WaitGroup
	buffers := make(chan []byte, 500)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				buffers <- pool.Get()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := 0; n < 500; n++ {
			pool.Put(<-buffers)
		}
	}()

	wg.Wait()
	<-done
}

// TestBufferPoolWrongSizeBuffer tests that buffers with wrong capacity are discarded.
func TestBufferPoolWrongSizeBuffer(t *testing.T) {
	pool := NewBufferPool(1024, 2)

	buf1 := pool.Get()
	buf2 := pool.Get()
	pool.Put(buf1)
	pool.Put(buf2)

	pool.Put(make([]byte, 512))

	_ = pool.Get()
	_ = pool.Get()

	// pool is empty now, so this one is freshly allocated
	buf3 := pool.Get()
	if cap(buf3) != 1024 {
		t.Errorf("Expected new buffer with capacity 1024, got %d", cap(buf3))
	}
	if pool.Size() != 1024 {
		t.Errorf("Expected Size 1024, got %d", pool.Size())
	}
}

// TestBufferPoolResetsLength tests that a shortened buffer comes back full length.
func TestBufferPoolResetsLength(t *testing.T) {
	pool := NewBufferPool(64, 1)

	buf := pool.Get()
	pool.Put(buf[:8])

	if got := len(pool.Get()); got != 64 {
		t.Errorf("Expected length 64 after Put of a short slice, got %d", got)
	}
}
