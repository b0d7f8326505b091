package pack

// readFrame tracks the last ID actually consumed within the current
// container, mirroring writeFrame on the decode side.
type readFrame struct {
	kind   Type
	idLast uint32
}

// Reader decodes a pack wire stream produced by Writer. Reads are
// random-access within the current container by ascending id: calling
// ReadU64(5) after ReadU64(2) is fine; calling ReadU64(1) afterward is
// an error, matching the source format's forward-only field cursor.
type Reader struct {
	data []byte
	pos  int
	err  error

	stack []readFrame

	nextID    uint32
	nextType  Type
	nextValue uint64
	havePeek  bool
}

// NewReader returns a Reader over a complete, previously-encoded pack
// byte stream.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, stack: []readFrame{{kind: TypeObj}}}
}

func (r *Reader) top() *readFrame {
	return &r.stack[len(r.stack)-1]
}

func (r *Reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, formatErrorf("unexpected end of pack stream")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) readVarint() (uint64, error) {
	var result uint64
	for shift := 0; shift < 70; shift += 7 {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return result, nil
		}
	}
	return 0, formatErrorf("unterminated base-128 integer")
}

func (r *Reader) skipBytes(n uint64) error {
	if uint64(len(r.data)-r.pos) < n {
		return formatErrorf("unexpected end of pack stream")
	}
	r.pos += int(n)
	return nil
}

// readTagNext decodes the next tag byte into nextID/nextType/nextValue.
// It returns false when the tag byte is the container-end marker (0).
func (r *Reader) readTagNext() (bool, error) {
	tag, err := r.readByte()
	if err != nil {
		return false, err
	}
	if tag == 0 {
		r.nextID = containerEndID
		return false, nil
	}

	t := Type(tag >> 4)
	if int(t) >= len(typeTable) {
		return false, formatErrorf("unknown pack type %d", t)
	}
	info := typeTable[t]
	var id uint32

	switch {
	case info.multiBit:
		if tag&0x8 != 0 {
			id = uint32(tag & 0x3)
			if tag&0x4 != 0 {
				delta, err := r.readVarint()
				if err != nil {
					return false, err
				}
				id |= uint32(delta) << 2
			}
			v, err := r.readVarint()
			if err != nil {
				return false, err
			}
			r.nextValue = v
		} else {
			id = uint32(tag & 0x1)
			if tag&0x2 != 0 {
				delta, err := r.readVarint()
				if err != nil {
					return false, err
				}
				id |= uint32(delta) << 1
			}
			r.nextValue = uint64(tag>>2) & 0x3
		}
	case info.singleBit:
		id = uint32(tag & 0x3)
		if tag&0x4 != 0 {
			delta, err := r.readVarint()
			if err != nil {
				return false, err
			}
			id |= uint32(delta) << 2
		}
		r.nextValue = uint64(tag>>3) & 0x1
	default: // container
		id = uint32(tag & 0x7)
		if tag&0x8 != 0 {
			delta, err := r.readVarint()
			if err != nil {
				return false, err
			}
			id |= uint32(delta) << 3
		}
		r.nextValue = 0
	}

	r.nextType = t
	r.nextID = id + r.top().idLast + 1
	return true, nil
}

// readTag is the shared cursor-advance-and-possibly-skip implementation
// backing every typed Read method. id == 0 means "next field in
// sequence". peek == true suppresses the type check and does not
// consume the field (used by Peek* and the container-end probe).
func (r *Reader) readTag(id uint32, t Type, peek bool) (uint32, uint64, error) {
	top := r.top()
	if id == 0 {
		id = top.idLast + 1
	} else if id <= top.idLast {
		return 0, 0, formatErrorf("field %d was already read", id)
	}

	for {
		if r.nextID == 0 {
			if _, err := r.readTagNext(); err != nil {
				return 0, 0, err
			}
		}

		if id < r.nextID {
			return id, 0, nil // field not present: implicit NULL
		}
		if id == r.nextID {
			if !peek {
				if r.nextType != t {
					return 0, 0, formatErrorf("field %d is type '%s' but expected '%s'", r.nextID, r.nextType, t)
				}
				top.idLast = r.nextID
				value := r.nextValue
				r.nextID = 0
				return id, value, nil
			}
			return id, r.nextValue, nil
		}

		// Skip the field we're not interested in.
		if typeTable[r.nextType].hasSize && r.nextValue != 0 {
			size, err := r.readVarint()
			if err != nil {
				return 0, 0, err
			}
			if err := r.skipBytes(size); err != nil {
				return 0, 0, err
			}
		}
		top.idLast = r.nextID
		r.nextID = 0
	}
}

// IsNull reports whether the field at id is absent (a gap), without
// consuming it if so. When id == 0 it checks the next field in
// sequence.
func (r *Reader) IsNull(id uint32) (bool, error) {
	top := r.top()
	checkID := id
	if checkID == 0 {
		checkID = top.idLast + 1
	}
	gotID, _, err := r.readTag(checkID, TypeUnknown, true)
	if err != nil {
		return false, err
	}
	if gotID < r.nextID {
		top.idLast = gotID
		return true, nil
	}
	return false, nil
}

// PeekID returns the id of the next field in the current container
// without advancing the cursor, or containerEndID if the container has
// no more fields.
func (r *Reader) PeekID() (uint32, error) {
	if r.nextID == 0 {
		if _, err := r.readTagNext(); err != nil {
			return 0, err
		}
	}
	return r.nextID, nil
}

// ReadU64 reads a u64 field. id == 0 reads the next field in sequence.
func (r *Reader) ReadU64(id uint32) (uint64, error) {
	_, v, err := r.readTag(id, TypeU64, false)
	return v, err
}

// ReadU64Default reads a u64 field, returning def if the field is an
// implicit NULL.
func (r *Reader) ReadU64Default(id uint32, def uint64) (uint64, error) {
	isNull, err := r.IsNull(id)
	if err != nil || isNull {
		return def, err
	}
	return r.ReadU64(id)
}

// ReadU32 reads a u32 field.
func (r *Reader) ReadU32(id uint32) (uint32, error) {
	_, v, err := r.readTag(id, TypeU32, false)
	return uint32(v), err
}

// ReadI64 reads a zigzag-encoded i64 field.
func (r *Reader) ReadI64(id uint32) (int64, error) {
	_, v, err := r.readTag(id, TypeI64, false)
	return unzigzag64(v), err
}

// ReadI32 reads a zigzag-encoded i32 field.
func (r *Reader) ReadI32(id uint32) (int32, error) {
	_, v, err := r.readTag(id, TypeI32, false)
	return unzigzag32(uint32(v)), err
}

// ReadBool reads a boolean field.
func (r *Reader) ReadBool(id uint32) (bool, error) {
	_, v, err := r.readTag(id, TypeBool, false)
	return v != 0, err
}

// ReadBoolDefault reads a boolean field, returning def on NULL.
func (r *Reader) ReadBoolDefault(id uint32, def bool) (bool, error) {
	isNull, err := r.IsNull(id)
	if err != nil || isNull {
		return def, err
	}
	return r.ReadBool(id)
}

// ReadStr reads a string field. A field with the nonempty bit clear
// decodes to "".
func (r *Reader) ReadStr(id uint32) (string, error) {
	_, nonEmpty, err := r.readTag(id, TypeStr, false)
	if err != nil {
		return "", err
	}
	if nonEmpty == 0 {
		return "", nil
	}
	size, err := r.readVarint()
	if err != nil {
		return "", err
	}
	if uint64(len(r.data)-r.pos) < size {
		return "", formatErrorf("unexpected end of pack stream")
	}
	s := string(r.data[r.pos : r.pos+int(size)])
	r.pos += int(size)
	return s, nil
}

// ReadBin reads a binary field, same framing as ReadStr.
func (r *Reader) ReadBin(id uint32) ([]byte, error) {
	_, nonEmpty, err := r.readTag(id, TypeBin, false)
	if err != nil {
		return nil, err
	}
	if nonEmpty == 0 {
		return []byte{}, nil
	}
	size, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	if uint64(len(r.data)-r.pos) < size {
		return nil, formatErrorf("unexpected end of pack stream")
	}
	b := make([]byte, size)
	copy(b, r.data[r.pos:r.pos+int(size)])
	r.pos += int(size)
	return b, nil
}

// ReadTime reads a Unix-seconds timestamp field.
func (r *Reader) ReadTime(id uint32) (int64, error) {
	_, v, err := r.readTag(id, TypeTime, false)
	return unzigzag64(v), err
}

// BeginObj enters a nested object container.
func (r *Reader) BeginObj(id uint32) error {
	_, _, err := r.readTag(id, TypeObj, false)
	if err != nil {
		return err
	}
	r.stack = append(r.stack, readFrame{kind: TypeObj})
	return nil
}

// EndObj exits the current object container, silently skipping any
// fields the caller never read.
func (r *Reader) EndObj() error {
	return r.endContainer(TypeObj)
}

// BeginArray enters a nested array container.
func (r *Reader) BeginArray(id uint32) error {
	_, _, err := r.readTag(id, TypeArray, false)
	if err != nil {
		return err
	}
	r.stack = append(r.stack, readFrame{kind: TypeArray})
	return nil
}

// EndArray exits the current array container.
func (r *Reader) EndArray() error {
	return r.endContainer(TypeArray)
}

func (r *Reader) endContainer(kind Type) error {
	if len(r.stack) == 1 || r.top().kind != kind {
		return formatErrorf("not in %s", kind)
	}
	if _, _, err := r.readTag(containerEndID-1, TypeUnknown, true); err != nil {
		return err
	}
	r.stack = r.stack[:len(r.stack)-1]
	r.nextID = 0
	return nil
}
