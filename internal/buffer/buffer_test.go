package buffer

import "testing"

func TestAppendGrows(t *testing.T) {
	b := New(4)
	b.Append([]byte("hello"))
	if b.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", b.Len())
	}
	if string(b.Bytes()) != "hello" {
		t.Fatalf("Bytes() = %q", b.Bytes())
	}
}

func TestSetLimitTruncatesWithoutRealloc(t *testing.T) {
	b := New(16)
	b.Append([]byte("hello world"))
	cap0 := b.Cap()
	b.SetLimit(5)
	if string(b.Bytes()) != "hello" {
		t.Fatalf("Bytes() = %q, want %q", b.Bytes(), "hello")
	}
	if b.Cap() != cap0 {
		t.Fatalf("Cap() changed after SetLimit: %d != %d", b.Cap(), cap0)
	}
	b.SetLimit(-1)
	if string(b.Bytes()) != "hello world" {
		t.Fatalf("Bytes() after clearing limit = %q", b.Bytes())
	}
}

func TestEqual(t *testing.T) {
	a := New(0)
	a.Append([]byte("abc"))
	b := New(0)
	b.Append([]byte("abc"))
	if !a.Equal(b) {
		t.Fatalf("expected equal buffers")
	}
	b.Append([]byte("d"))
	if a.Equal(b) {
		t.Fatalf("expected unequal buffers")
	}
}

func TestReset(t *testing.T) {
	b := New(0)
	b.Append([]byte("data"))
	b.SetLimit(2)
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", b.Len())
	}
}
