package scheduler_test

import (
	"errors"
	"os"
	"sync"
	"testing"

	"pagestore/pkg/scheduler"
)

type fakeDisk struct {
	mu      sync.Mutex
	pages   map[int64][]byte
	failIDs map[int64]bool
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{pages: make(map[int64][]byte), failIDs: make(map[int64]bool)}
}

func (f *fakeDisk) ReadPage(id int64, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return errors.New("simulated read failure")
	}
	data, ok := f.pages[id]
	if ok {
		copy(buf, data)
	}
	return nil
}

func (f *fakeDisk) WritePage(id int64, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return errors.New("simulated write failure")
	}
	data := make([]byte, len(buf))
	copy(data, buf)
	f.pages[id] = data
	return nil
}

func tempAuditPath(t *testing.T) string {
	f, err := os.CreateTemp("", "*.audit")
	if err != nil {
		t.Fatal(err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	t.Cleanup(func() { os.Remove(name) })
	return name
}

func TestScheduleWriteThenRead(t *testing.T) {
	disk := newFakeDisk()
	sched, err := scheduler.New(disk, tempAuditPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 0x41
	}
	writeReq := scheduler.NewRequest(scheduler.Write, 3, buf)
	sched.Schedule(writeReq)
	if ok := <-writeReq.Done; !ok {
		t.Fatal("expected write to succeed")
	}

	readBuf := make([]byte, 16)
	readReq := scheduler.NewRequest(scheduler.Read, 3, readBuf)
	sched.Schedule(readReq)
	if ok := <-readReq.Done; !ok {
		t.Fatal("expected read to succeed")
	}
	if readBuf[0] != 0x41 {
		t.Fatalf("got %x, want 0x41", readBuf[0])
	}
}

func TestScheduleFailurePropagates(t *testing.T) {
	disk := newFakeDisk()
	disk.failIDs[5] = true
	sched, err := scheduler.New(disk, tempAuditPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	req := scheduler.NewRequest(scheduler.Read, 5, make([]byte, 4))
	sched.Schedule(req)
	if ok := <-req.Done; ok {
		t.Fatal("expected failure signal")
	}
}

func TestFIFOOrderWithinSubmitter(t *testing.T) {
	disk := newFakeDisk()
	sched, err := scheduler.New(disk, tempAuditPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	const n = 50
	reqs := make([]*scheduler.Request, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, 1)
		buf[0] = byte(i)
		reqs[i] = scheduler.NewRequest(scheduler.Write, int64(i), buf)
		sched.Schedule(reqs[i])
	}
	for i := 0; i < n; i++ {
		if ok := <-reqs[i].Done; !ok {
			t.Fatalf("write %d failed", i)
		}
	}
	for i := 0; i < n; i++ {
		got, ok := disk.pages[int64(i)]
		if !ok || got[0] != byte(i) {
			t.Fatalf("page %d not written correctly: %v", i, got)
		}
	}
}

func TestTailAudit(t *testing.T) {
	disk := newFakeDisk()
	sched, err := scheduler.New(disk, tempAuditPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	for i := 0; i < 5; i++ {
		req := scheduler.NewRequest(scheduler.Write, int64(i), []byte{byte(i)})
		sched.Schedule(req)
		<-req.Done
	}

	lines, err := sched.TailAudit(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
}

func TestScheduleAfterStopFails(t *testing.T) {
	disk := newFakeDisk()
	sched, err := scheduler.New(disk, tempAuditPath(t))
	if err != nil {
		t.Fatal(err)
	}
	sched.Stop()

	req := scheduler.NewRequest(scheduler.Read, 0, make([]byte, 1))
	sched.Schedule(req)
	if ok := <-req.Done; ok {
		t.Fatal("expected scheduling after Stop to fail")
	}
}
