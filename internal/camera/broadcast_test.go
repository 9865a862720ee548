package camera

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func collect(t *testing.T, sub *Subscription, n int) []uint64 {
	t.Helper()
	var seqs []uint64
	timeout := time.After(5 * time.Second)
	for len(seqs) < n {
		select {
		case f := <-sub.C():
			seqs = append(seqs, f.Seq)
		case <-timeout:
			t.Errorf("received %d of %d frames", len(seqs), n)
			return seqs
		}
	}
	return seqs
}

func TestBroadcaster_SubscribersReceiveSameFrames(t *testing.T) {
	m := NewManager(SyntheticOpener{Devices: 1, Rate: 20 * time.Millisecond}, NewRunState(0), Config{})
	defer m.Release()
	b := NewBroadcaster(m, BroadcastConfig{})

	subs := []*Subscription{b.Subscribe(), b.Subscribe()}
	results := make([][]uint64, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = collect(t, sub, 10)
		}()
	}
	wg.Wait()
	for _, sub := range subs {
		sub.Close()
	}
	if len(results[0]) != 10 || len(results[1]) != 10 {
		t.FailNow()
	}

	shared := 0
	inFirst := make(map[uint64]bool)
	for _, seq := range results[0] {
		inFirst[seq] = true
	}
	for _, seq := range results[1] {
		if inFirst[seq] {
			shared++
		}
	}
	if shared < 8 {
		t.Errorf("subscribers shared %d of 10 frames: %v / %v", shared, results[0], results[1])
	}

	// One reader at the device rate, not one per subscriber.
	last := max(results[0][9], results[1][9])
	if reads := m.Status().Reads; reads > int64(last)+3 {
		t.Errorf("device read %d times for %d published frames", reads, last)
	}
}

func TestBroadcaster_ReaderFollowsSubscribers(t *testing.T) {
	var reads atomic.Int32
	src := readerFunc(func(ctx context.Context) (Frame, error) {
		reads.Add(1)
		time.Sleep(time.Millisecond)
		return Frame{Data: []byte{1}}, nil
	})
	b := NewBroadcaster(src, BroadcastConfig{})

	time.Sleep(10 * time.Millisecond)
	if reads.Load() != 0 {
		t.Fatal("broadcaster read without subscribers")
	}

	sub := b.Subscribe()
	collect(t, sub, 3)
	if b.readers.Load() != 1 {
		t.Errorf("expected one reader, got %d", b.readers.Load())
	}
	sub.Close()
	sub.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.readers.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("reader still running after the last subscriber left")
		}
		time.Sleep(time.Millisecond)
	}
	if b.Viewers() != 0 {
		t.Errorf("Viewers() = %d, want 0", b.Viewers())
	}
}

func TestBroadcaster_SeqIsMonotonic(t *testing.T) {
	src := readerFunc(func(ctx context.Context) (Frame, error) {
		time.Sleep(time.Millisecond)
		return Frame{Seq: 7}, nil // a reopened device restarts its own numbering
	})
	b := NewBroadcaster(src, BroadcastConfig{})
	sub := b.Subscribe()
	defer sub.Close()

	seqs := collect(t, sub, 3)
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Errorf("sequence not increasing: %v", seqs)
		}
	}
}

func TestBroadcaster_SlowSubscriberSkipsFrames(t *testing.T) {
	src := readerFunc(func(ctx context.Context) (Frame, error) {
		time.Sleep(time.Millisecond)
		return Frame{}, nil
	})
	b := NewBroadcaster(src, BroadcastConfig{})
	fast, slow := b.Subscribe(), b.Subscribe()
	defer slow.Close()

	collect(t, fast, 20)
	fast.Close()

	if slow.Dropped() == 0 {
		t.Error("expected the idle subscriber to skip frames")
	}
	if got := collect(t, slow, 1); len(got) == 1 && got[0] == 0 {
		t.Error("expected the latest frame in the mailbox")
	}
}

func TestBroadcaster_RetriesReadFailures(t *testing.T) {
	var calls atomic.Int32
	src := readerFunc(func(ctx context.Context) (Frame, error) {
		if calls.Add(1) <= 3 {
			return Frame{}, errors.New("no signal")
		}
		return Frame{Data: []byte{1}}, nil
	})
	b := NewBroadcaster(src, BroadcastConfig{ReadRetry: time.Millisecond})
	sub := b.Subscribe()
	defer sub.Close()

	collect(t, sub, 1)
	if calls.Load() < 4 {
		t.Errorf("expected retries before the first frame, got %d reads", calls.Load())
	}
}

type readerFunc func(ctx context.Context) (Frame, error)

func (f readerFunc) ReadFrame(ctx context.Context) (Frame, error) { return f(ctx) }
