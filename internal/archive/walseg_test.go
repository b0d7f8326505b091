package archive

import "testing"

func TestNextSegmentWithinLog(t *testing.T) {
	next, err := NextSegment("0000000100000000000000FE", DefaultSegmentsPerLog)
	if err != nil {
		t.Fatal(err)
	}
	if next != "0000000100000000000000FF" {
		t.Fatalf("got %q", next)
	}
}

func TestNextSegmentRollsOverLog(t *testing.T) {
	next, err := NextSegment("0000000100000000000000FF", DefaultSegmentsPerLog)
	if err != nil {
		t.Fatal(err)
	}
	if next != "000000010000000100000000" {
		t.Fatalf("got %q, want 000000010000000100000000", next)
	}
}

func TestNextSegmentRejectsMalformedName(t *testing.T) {
	if _, err := NextSegment("not-a-segment", DefaultSegmentsPerLog); err == nil {
		t.Fatal("expected an error")
	}
}

func TestIdealQueueBuildsSequentialRun(t *testing.T) {
	segs, err := IdealQueue("0000000100000000000000FE", 3, DefaultSegmentsPerLog)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"0000000100000000000000FE",
		"0000000100000000000000FF",
		"000000010000000100000000",
	}
	if len(segs) != len(want) {
		t.Fatalf("got %v", segs)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Fatalf("got %v, want %v", segs, want)
		}
	}
}
