package archive

import "github.com/juju/errors"

// DefaultSegmentsPerLog is PostgreSQL's segment-per-log-id count for
// the default 16 MiB WAL segment size (2^32 bytes / 16 MiB).
const DefaultSegmentsPerLog = 256

// NextSegment returns the WAL segment name that follows name in
// sequence: spec.md's "Archive segment" paragraph names the
// `TTTTTTTTLLLLLLLLSSSSSSSS` (timeline+logid+segno) format but leaves
// its increment arithmetic implicit; this follows PostgreSQL's
// XLogFileName numbering, where the low 8 hex digits (segno) wrap into
// the middle 8 (logid) at segmentsPerLog.
func NextSegment(name string, segmentsPerLog uint32) (string, error) {
	timeline, logID, segNo, err := parseSegment(name)
	if err != nil {
		return "", errors.Trace(err)
	}
	segNo++
	if segNo >= segmentsPerLog {
		segNo = 0
		logID++
	}
	return formatSegment(timeline, logID, segNo), nil
}

func parseSegment(name string) (timeline, logID, segNo uint32, err error) {
	if len(name) != 24 {
		return 0, 0, 0, errors.NotValidf("WAL segment name %q", name)
	}
	fields := [3]*uint32{&timeline, &logID, &segNo}
	for i, f := range fields {
		v, ok := parseHex8(name[i*8 : i*8+8])
		if !ok {
			return 0, 0, 0, errors.NotValidf("WAL segment name %q", name)
		}
		*f = v
	}
	return timeline, logID, segNo, nil
}

func parseHex8(s string) (uint32, bool) {
	var v uint32
	for _, c := range []byte(s) {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint32(c - '0')
		case c >= 'A' && c <= 'F':
			v |= uint32(c-'A') + 10
		case c >= 'a' && c <= 'f':
			v |= uint32(c-'a') + 10
		default:
			return 0, false
		}
	}
	return v, true
}

func formatSegment(timeline, logID, segNo uint32) string {
	const hexDigits = "0123456789ABCDEF"
	buf := make([]byte, 24)
	fields := [3]uint32{timeline, logID, segNo}
	for i, v := range fields {
		for j := 7; j >= 0; j-- {
			buf[i*8+j] = hexDigits[v&0xF]
			v >>= 4
		}
	}
	return string(buf)
}

// IdealQueue returns the depth segments starting at from (inclusive),
// in WAL sequence order, per spec.md §4.8 step 3's prefetch horizon.
func IdealQueue(from string, depth int, segmentsPerLog uint32) ([]string, error) {
	if depth <= 0 {
		return nil, nil
	}
	out := make([]string, 0, depth)
	seg := from
	for i := 0; i < depth; i++ {
		out = append(out, seg)
		if i == depth-1 {
			break
		}
		next, err := NextSegment(seg, segmentsPerLog)
		if err != nil {
			return nil, errors.Trace(err)
		}
		seg = next
	}
	return out, nil
}
