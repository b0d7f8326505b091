package pack

import (
	"bytes"
	"testing"
)

// TestTagByteSecondU64Field exercises the exact tag encoding walked
// through by the source format's own documentation: a u64 field at id
// 11 following one already written at id 1, producing the tag+overflow
// bytes "b7 04" (the value fits in the tag; the ID delta of 9 needs one
// overflow byte).
func TestTagByteSecondU64Field(t *testing.T) {
	w := NewWriter()
	if err := w.WriteU64(1, 1); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteU64(11, 1); err != nil {
		t.Fatal(err)
	}
	got, err := w.Close()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xb4, 0xb7, 0x04, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}

	r := NewReader(got)
	v1, err := r.ReadU64(1)
	if err != nil || v1 != 1 {
		t.Fatalf("ReadU64(1) = %d, %v", v1, err)
	}
	v2, err := r.ReadU64(11)
	if err != nil || v2 != 1 {
		t.Fatalf("ReadU64(11) = %d, %v", v2, err)
	}
}

// TestTagByteString exercises the source format's string-field
// encoding walkthrough: a str field at id 37 (the first field in the
// container) with value "sample", producing "8c 09 06 <sample> 00".
func TestTagByteString(t *testing.T) {
	w := NewWriter()
	if err := w.WriteStr(37, "sample"); err != nil {
		t.Fatal(err)
	}
	got, err := w.Close()
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{0x8c, 0x09, 0x06}, []byte("sample")...)
	want = append(want, 0x00)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}

	r := NewReader(got)
	s, err := r.ReadStr(37)
	if err != nil || s != "sample" {
		t.Fatalf("ReadStr(37) = %q, %v", s, err)
	}
}

// TestGapIsImplicitNull verifies that an unwritten id between two
// written fields decodes as an absent (NULL) field, never as an error.
func TestGapIsImplicitNull(t *testing.T) {
	w := NewWriter()
	_ = w.WriteU64(1, 1)
	_ = w.WriteU64(11, 42)
	data, err := w.Close()
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader(data)
	isNull, err := r.IsNull(5)
	if err != nil {
		t.Fatal(err)
	}
	if !isNull {
		t.Fatalf("expected field 5 to be null")
	}
	v, err := r.ReadU64(11)
	if err != nil || v != 42 {
		t.Fatalf("ReadU64(11) = %d, %v", v, err)
	}
}

// TestRoundTrip covers every scalar type plus nested containers across
// a range of ids and values, confirming decode reproduces exactly what
// was written.
func TestRoundTrip(t *testing.T) {
	w := NewWriter()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(w.WriteU64(1, 0))
	must(w.WriteU64(2, 1))
	must(w.WriteU64(3, 1<<40))
	must(w.WriteI64(4, -1))
	must(w.WriteI64(5, -(1 << 33)))
	must(w.WriteI64(6, 1<<33))
	must(w.WriteBool(7, true))
	must(w.WriteBool(8, false))
	must(w.WriteStr(9, ""))
	must(w.WriteStr(10, "hello world"))
	must(w.WriteBin(11, []byte{1, 2, 3, 4, 5}))
	must(w.WriteU32(12, 4242))
	must(w.WriteI32(13, -7))
	must(w.WriteTime(14, 1700000000))
	must(w.BeginObj(20))
	must(w.WriteStr(1, "nested"))
	must(w.EndObj())
	must(w.BeginArray(21))
	must(w.WriteU64(0, 1))
	must(w.WriteU64(0, 2))
	must(w.WriteU64(0, 3))
	must(w.EndArray())

	data, err := w.Close()
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader(data)
	check := func(got, want interface{}) {
		if got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	v, err := r.ReadU64(1)
	must(err)
	check(v, uint64(0))
	v, err = r.ReadU64(2)
	must(err)
	check(v, uint64(1))
	v, err = r.ReadU64(3)
	must(err)
	check(v, uint64(1<<40))

	i, err := r.ReadI64(4)
	must(err)
	check(i, int64(-1))
	i, err = r.ReadI64(5)
	must(err)
	check(i, int64(-(1 << 33)))
	i, err = r.ReadI64(6)
	must(err)
	check(i, int64(1<<33))

	b, err := r.ReadBool(7)
	must(err)
	check(b, true)
	b, err = r.ReadBool(8)
	must(err)
	check(b, false)

	s, err := r.ReadStr(9)
	must(err)
	check(s, "")
	s, err = r.ReadStr(10)
	must(err)
	check(s, "hello world")

	bin, err := r.ReadBin(11)
	must(err)
	if !bytes.Equal(bin, []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("ReadBin(11) = % x", bin)
	}

	u32, err := r.ReadU32(12)
	must(err)
	check(u32, uint32(4242))
	i32, err := r.ReadI32(13)
	must(err)
	check(i32, int32(-7))
	tm, err := r.ReadTime(14)
	must(err)
	check(tm, int64(1700000000))

	must(r.BeginObj(20))
	s, err = r.ReadStr(1)
	must(err)
	check(s, "nested")
	must(r.EndObj())

	must(r.BeginArray(21))
	for _, want := range []uint64{1, 2, 3} {
		v, err := r.ReadU64(0)
		must(err)
		check(v, want)
	}
	must(r.EndArray())
}

// TestSkippedFieldsAreDiscarded confirms that reading a higher id skips
// over (and correctly discards, including length-prefixed payloads) any
// lower, unread fields.
func TestSkippedFieldsAreDiscarded(t *testing.T) {
	w := NewWriter()
	_ = w.WriteStr(1, "skip me entirely")
	_ = w.WriteU64(2, 99)
	_ = w.WriteStr(3, "also skip")
	_ = w.WriteU64(4, 7)
	data, err := w.Close()
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader(data)
	v, err := r.ReadU64(4)
	if err != nil || v != 7 {
		t.Fatalf("ReadU64(4) = %d, %v", v, err)
	}
}

// TestTypeMismatchFails confirms reading a field at its correct id with
// the wrong type produces a FormatError rather than silently coercing.
func TestTypeMismatchFails(t *testing.T) {
	w := NewWriter()
	_ = w.WriteStr(1, "not a number")
	data, err := w.Close()
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader(data)
	_, err = r.ReadU64(1)
	if err == nil {
		t.Fatalf("expected a type mismatch error")
	}
	if _, ok := err.(*FormatError); !ok {
		t.Fatalf("expected *FormatError, got %T", err)
	}
}

// TestReReadFails confirms that reading an id less than or equal to the
// last id already consumed in the container fails, matching the
// forward-only field cursor.
func TestReReadFails(t *testing.T) {
	w := NewWriter()
	_ = w.WriteU64(5, 1)
	_ = w.WriteU64(10, 2)
	data, err := w.Close()
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader(data)
	if _, err := r.ReadU64(10); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadU64(5); err == nil {
		t.Fatalf("expected an error re-reading an earlier id")
	}
}

// TestDefaultElision confirms a field equal to its default, written
// with defaultWrite=false, occupies no tag byte and decodes back to
// the same default via the Default-suffixed reader.
func TestDefaultElision(t *testing.T) {
	w := NewWriter()
	_ = w.WriteU64Default(1, 0, 0, false) // elided: equals default
	_ = w.WriteU64(2, 5)
	data, err := w.Close()
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader(data)
	v, err := r.ReadU64Default(1, 0)
	if err != nil || v != 0 {
		t.Fatalf("ReadU64Default(1) = %d, %v", v, err)
	}
	v, err = r.ReadU64(2)
	if err != nil || v != 5 {
		t.Fatalf("ReadU64(2) = %d, %v", v, err)
	}
}
