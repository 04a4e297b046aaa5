package conversation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPendingPagesIsolation(t *testing.T) {
	p := NewPendingPages()
	front := []byte("front")
	p.SetFront(1, front)
	p.SetBack(1, []byte("back"))
	p.SetFront(2, []byte("other"))

	front[0] = 'X'
	got := p.Pages(1)
	if string(got.Front) != "front" || string(got.Back) != "back" {
		t.Fatalf("chat 1 pages = %q / %q", got.Front, got.Back)
	}
	got.Back[0] = 'Y'
	if string(p.Pages(1).Back) != "back" {
		t.Fatalf("Pages returned shared memory")
	}

	p.Clear(1)
	if got := p.Pages(1); got.Front != nil || got.Back != nil {
		t.Fatalf("clear left %+v", got)
	}
	if string(p.Pages(2).Front) != "other" {
		t.Fatalf("clearing chat 1 touched chat 2")
	}
}

func TestPendingSetFrontDropsBack(t *testing.T) {
	p := NewPendingPages()
	p.SetFront(1, []byte("f1"))
	p.SetBack(1, []byte("b1"))
	p.SetFront(1, []byte("f2"))
	if got := p.Pages(1); string(got.Front) != "f2" || got.Back != nil {
		t.Fatalf("pages = %q / %q", got.Front, got.Back)
	}
}

func TestPendingBackWithoutFront(t *testing.T) {
	p := NewPendingPages()
	p.SetBack(1, []byte("b"))
	if got := p.Pages(1); got.Front != nil || string(got.Back) != "b" {
		t.Fatalf("pages = %+v", got)
	}
}

func TestChatLocksRespectContext(t *testing.T) {
	l := newChatLocks()
	unlock, err := l.acquire(context.Background(), 7)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.acquire(ctx, 7); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second acquire err = %v", err)
	}

	other, err := l.acquire(context.Background(), 8)
	if err != nil {
		t.Fatalf("other chat blocked: %v", err)
	}
	other()

	unlock()
	again, err := l.acquire(context.Background(), 7)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	again()
	if n := l.size(); n != 0 {
		t.Fatalf("size = %d after release", n)
	}
}
