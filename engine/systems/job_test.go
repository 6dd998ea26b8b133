package systems

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestNewJobSystem(t *testing.T) {
	if _, err := NewJobSystem(0, 1); !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("NewJobSystem(0, 1):\nhave %v\nwant %v", err, ErrNoWorkers)
	}
	if _, err := NewJobSystem(1, -1); !errors.Is(err, ErrNegativeChannelSize) {
		t.Fatalf("NewJobSystem(1, -1):\nhave %v\nwant %v", err, ErrNegativeChannelSize)
	}
}

func TestJobSystemRunsAll(t *testing.T) {
	js, err := NewJobSystem(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	var started, completed, failed atomic.Int32
	fail := errors.New("fail")
	for i := 0; i < 100; i++ {
		i := i
		err := js.Submit(JobTask{
			Name: "count",
			OnStart: func() error {
				started.Add(1)
				if i%10 == 0 {
					return fail
				}
				return nil
			},
			OnFailure: func(err error) {
				if errors.Is(err, fail) {
					failed.Add(1)
				}
			},
			OnComplete: func() { completed.Add(1) },
		})
		if err != nil {
			t.Fatalf("Submit:\nhave %v\nwant nil", err)
		}
	}
	if err := js.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if s, c, f := started.Load(), completed.Load(), failed.Load(); s != 100 || c != 90 || f != 10 {
		t.Fatalf("jobs started/completed/failed:\nhave %d/%d/%d\nwant 100/90/10", s, c, f)
	}
}

func TestJobSystemClosed(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	js.Shutdown()
	if err := js.Shutdown(); err != nil {
		t.Fatalf("second Shutdown:\nhave %v\nwant nil", err)
	}
	job := JobTask{Name: "late", OnStart: func() error { return nil }}
	if err := js.Submit(job); !errors.Is(err, ErrJobSystemClosed) {
		t.Fatalf("Submit after Shutdown:\nhave %v\nwant %v", err, ErrJobSystemClosed)
	}
	if js.TrySubmit(job) {
		t.Fatal("TrySubmit after Shutdown:\nhave true\nwant false")
	}
}
