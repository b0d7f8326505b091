package pack

import "io"

// writeFrame tracks, per open container, the ID bookkeeping the encoder
// needs: the last ID actually written and the count of pending NULLs
// elided since then (spec §4.2, "writing tracks (idLast, nullTotal)").
type writeFrame struct {
	kind      Type
	idLast    uint32
	nullTotal uint32
}

// Writer encodes a sequence of typed, numbered fields into the pack wire
// format. The zero value is not usable; construct with NewWriter.
type Writer struct {
	buf   []byte
	stack []writeFrame
}

// NewWriter returns a Writer whose outermost implicit container is an
// object, matching the source format's convention that every pack
// stream is rooted in an object.
func NewWriter() *Writer {
	return &Writer{stack: []writeFrame{{kind: TypeObj}}}
}

func (w *Writer) top() *writeFrame {
	return &w.stack[len(w.stack)-1]
}

func (w *Writer) putByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *Writer) putVarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

// writeTag emits the tag byte (and any overflow ID-delta / value
// varints) for a field of type t at id, carrying value. id == 0 means
// "one past the last field written, including elided NULLs". value is
// already normalized for the type: the zigzag-encoded magnitude for
// signed integers, 0/1 for the single-bit types.
func (w *Writer) writeTag(t Type, id uint32, value uint64) (uint32, error) {
	top := w.top()
	if id == 0 {
		id = top.idLast + top.nullTotal + 1
	} else if id <= top.idLast {
		return 0, formatErrorf("field %d was already written", id)
	}
	top.nullTotal = 0

	tagID := id - top.idLast - 1
	tag := uint8(t) << 4
	info := typeTable[t]

	switch {
	case info.multiBit:
		if value < 2 {
			tag |= uint8((value & 0x1) << 2)
			value >>= 1
			tag |= uint8(tagID & 0x1)
			tagID >>= 1
			if tagID > 0 {
				tag |= 0x2
			}
		} else {
			tag |= 0x8
			tag |= uint8(tagID & 0x3)
			tagID >>= 2
			if tagID > 0 {
				tag |= 0x4
			}
		}
	case info.singleBit:
		tag |= uint8((value & 0x1) << 3)
		value >>= 1
		tag |= uint8(tagID & 0x3)
		tagID >>= 2
		if tagID > 0 {
			tag |= 0x4
		}
	default: // container
		tag |= uint8(tagID & 0x7)
		tagID >>= 3
		if tagID > 0 {
			tag |= 0x8
		}
	}

	w.putByte(tag)
	if tagID > 0 {
		w.putVarint(uint64(tagID))
	}
	if value > 0 {
		w.putVarint(value)
	}
	top.idLast = id
	return id, nil
}

// defaultElided reports whether the field should be skipped as an
// implicit NULL: defaultWrite is false and the value equals the type's
// default. When elided the container's nullTotal is bumped so the next
// written field's ID delta accounts for the gap.
func (w *Writer) defaultElided(defaultWrite, isDefault bool) bool {
	if !defaultWrite && isDefault {
		w.top().nullTotal++
		return true
	}
	return false
}

// WriteNull explicitly writes a gap at the next implicit id.
func (w *Writer) WriteNull() {
	w.top().nullTotal++
}

// WriteU64 writes an explicit-id u64 field. id == 0 uses the next
// implicit id.
func (w *Writer) WriteU64(id uint32, value uint64) error {
	_, err := w.writeTag(TypeU64, id, value)
	return err
}

// WriteU64Default writes value unless defaultWrite is false and value
// equals def, in which case a NULL gap is left instead.
func (w *Writer) WriteU64Default(id uint32, value, def uint64, defaultWrite bool) error {
	if w.defaultElided(defaultWrite, value == def) {
		return nil
	}
	return w.WriteU64(id, value)
}

// WriteU32 writes an explicit-id u32 field.
func (w *Writer) WriteU32(id uint32, value uint32) error {
	_, err := w.writeTag(TypeU32, id, uint64(value))
	return err
}

// WriteI64 writes a zigzag-encoded i64 field.
func (w *Writer) WriteI64(id uint32, value int64) error {
	_, err := w.writeTag(TypeI64, id, zigzag64(value))
	return err
}

// WriteI32 writes a zigzag-encoded i32 field.
func (w *Writer) WriteI32(id uint32, value int32) error {
	_, err := w.writeTag(TypeI32, id, uint64(zigzag32(value)))
	return err
}

// WriteBool writes a boolean field.
func (w *Writer) WriteBool(id uint32, value bool) error {
	v := uint64(0)
	if value {
		v = 1
	}
	_, err := w.writeTag(TypeBool, id, v)
	return err
}

// WriteBoolDefault elides the field when value == def and defaultWrite
// is false.
func (w *Writer) WriteBoolDefault(id uint32, value, def, defaultWrite bool) error {
	if w.defaultElided(defaultWrite, value == def) {
		return nil
	}
	return w.WriteBool(id, value)
}

// WriteStr writes a string field. An empty string is encoded with the
// "nonempty" bit clear and no length/data bytes at all.
func (w *Writer) WriteStr(id uint32, value string) error {
	nonEmpty := uint64(0)
	if len(value) > 0 {
		nonEmpty = 1
	}
	if _, err := w.writeTag(TypeStr, id, nonEmpty); err != nil {
		return err
	}
	if len(value) > 0 {
		w.putVarint(uint64(len(value)))
		w.buf = append(w.buf, value...)
	}
	return nil
}

// WriteBin writes a binary field, same framing as WriteStr.
func (w *Writer) WriteBin(id uint32, value []byte) error {
	nonEmpty := uint64(0)
	if len(value) > 0 {
		nonEmpty = 1
	}
	if _, err := w.writeTag(TypeBin, id, nonEmpty); err != nil {
		return err
	}
	if len(value) > 0 {
		w.putVarint(uint64(len(value)))
		w.buf = append(w.buf, value...)
	}
	return nil
}

// WriteTime writes a Unix-seconds timestamp as a zigzag-encoded i64.
func (w *Writer) WriteTime(id uint32, unixSeconds int64) error {
	_, err := w.writeTag(TypeTime, id, zigzag64(unixSeconds))
	return err
}

// BeginObj opens a nested object container at id.
func (w *Writer) BeginObj(id uint32) error {
	if _, err := w.writeTag(TypeObj, id, 0); err != nil {
		return err
	}
	w.stack = append(w.stack, writeFrame{kind: TypeObj})
	return nil
}

// EndObj closes the most recently opened object container.
func (w *Writer) EndObj() error {
	return w.endContainer(TypeObj)
}

// BeginArray opens a nested array container at id.
func (w *Writer) BeginArray(id uint32) error {
	if _, err := w.writeTag(TypeArray, id, 0); err != nil {
		return err
	}
	w.stack = append(w.stack, writeFrame{kind: TypeArray})
	return nil
}

// EndArray closes the most recently opened array container.
func (w *Writer) EndArray() error {
	return w.endContainer(TypeArray)
}

func (w *Writer) endContainer(kind Type) error {
	if len(w.stack) == 1 || w.top().kind != kind {
		return formatErrorf("not in %s", kind)
	}
	w.putVarint(0)
	w.stack = w.stack[:len(w.stack)-1]
	return nil
}

// Close terminates the root container and returns the complete encoded
// byte stream. The Writer must not be used afterward.
func (w *Writer) Close() ([]byte, error) {
	if len(w.stack) != 1 {
		return nil, formatErrorf("%d containers still open", len(w.stack)-1)
	}
	w.putVarint(0)
	return w.buf, nil
}

// WriteTo writes the already-closed byte stream to dst. Callers that
// want to stream output incrementally should call Close and write the
// result themselves; WriteTo is a convenience for the common case.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	b, err := w.Close()
	if err != nil {
		return 0, err
	}
	n, err := dst.Write(b)
	return int64(n), err
}
