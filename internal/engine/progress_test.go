package engine

import "testing"

func TestChannelSinkDropsWhenFull(t *testing.T) {
	s := NewChannelSink(2)
	for i := 0; i < 5; i++ {
		s.Progress(ProgressEvent{Repository: "demo", Stage: StageSyncing, Percent: i * 10})
	}
	if s.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", s.Dropped())
	}

	s.Close()
	s.Close()
	s.Progress(ProgressEvent{Repository: "late"})

	var got []int
	for e := range s.Events() {
		got = append(got, e.Percent)
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 10 {
		t.Errorf("events = %v, want [0 10]", got)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	var calls int
	m := MultiSink{a, nil, b, ProgressFunc(func(ProgressEvent) { calls++ })}

	m.Progress(ProgressEvent{Repository: "demo", Stage: StageDone, Percent: 100})

	if len(a.forRepo("demo")) != 1 || len(b.forRepo("demo")) != 1 || calls != 1 {
		t.Errorf("fan-out missed a sink: a=%d b=%d func=%d", len(a.forRepo("demo")), len(b.forRepo("demo")), calls)
	}
}
