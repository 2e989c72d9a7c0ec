package engine

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Push([]byte{1})
	q.Push([]byte{2})
	q.Push([]byte{3})

	for want := byte(1); want <= 3; want++ {
		chunk, ok := q.Pop()
		if !ok || len(chunk) != 1 || chunk[0] != want {
			t.Fatalf("Pop = %v, %v; want [%d], true", chunk, ok, want)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after drain", q.Len())
	}
}

func TestQueueTryPopEmpty(t *testing.T) {
	q := NewQueue()
	if chunk, ok := q.TryPop(); ok || chunk != nil {
		t.Errorf("TryPop on empty = %v, %v", chunk, ok)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	got := make(chan []byte)
	go func() {
		chunk, _ := q.Pop()
		got <- chunk
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push([]byte{42})

	select {
	case chunk := <-got:
		if len(chunk) != 1 || chunk[0] != 42 {
			t.Errorf("Pop = %v", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue()
	q.Push([]byte{1})
	q.Close()

	if chunk, ok := q.Pop(); !ok || chunk[0] != 1 {
		t.Fatalf("queued chunk lost on close: %v, %v", chunk, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop = true on closed empty queue")
	}
}

func TestQueuePushAfterCloseDropped(t *testing.T) {
	q := NewQueue()
	q.Close()
	q.Push([]byte{1})
	if q.Len() != 0 {
		t.Error("push after close was queued")
	}
}

func TestQueueCloseWakesBlockedConsumer(t *testing.T) {
	q := NewQueue()
	done := make(chan bool)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop returned true on close without data")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Close")
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue()
	const chunks = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < chunks; i++ {
			q.Push([]byte{byte(i)})
		}
		q.Close()
	}()

	var got bytes.Buffer
	for {
		chunk, ok := q.Pop()
		if !ok {
			break
		}
		got.Write(chunk)
	}
	wg.Wait()

	if got.Len() != chunks {
		t.Fatalf("consumed %d chunks, want %d", got.Len(), chunks)
	}
	for i, b := range got.Bytes() {
		if b != byte(i) {
			t.Fatalf("chunk %d out of order: got %d", i, b)
		}
	}
}
