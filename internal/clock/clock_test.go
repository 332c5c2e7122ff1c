package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	var order []int
	t1 := f.After(2 * time.Second)
	t2 := f.After(1 * time.Second)

	go func() {
		<-t2.C()
		order = append(order, 2)
	}()

	f.Advance(1 * time.Second)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, []int{2}, order)

	select {
	case <-t1.C():
		t.Fatal("t1 should not have fired yet")
	default:
	}

	f.Advance(1 * time.Second)
	select {
	case <-t1.C():
	default:
		t.Fatal("t1 should have fired")
	}
}

func TestFakeTimerStopPreventsFire(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tm := f.After(time.Second)
	require.True(t, tm.Stop())

	f.Advance(2 * time.Second)
	select {
	case <-tm.C():
		t.Fatal("stopped timer must not fire")
	default:
	}
}

func TestFakeTimerReset(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tm := f.After(time.Second)

	f.Advance(500 * time.Millisecond)
	tm.Reset(time.Second)
	f.Advance(500 * time.Millisecond)

	select {
	case <-tm.C():
		t.Fatal("reset timer should not have fired yet")
	default:
	}

	f.Advance(500 * time.Millisecond)
	select {
	case <-tm.C():
	default:
		t.Fatal("reset timer should have fired")
	}
}
