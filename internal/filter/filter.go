// Package filter implements the streaming byte-transform chain that
// sits between a raw storage read/write endpoint and the logical bytes
// a caller wants: compression, encryption, hashing, size accounting,
// and format-specific verification, all composable into an ordered
// Group.
package filter

import "github.com/juju/errors"

// Filter transforms chunks of a byte stream. Process is called
// repeatedly with the next input chunk; a filter that cannot consume
// the whole chunk in one call (a compressor whose output buffer filled)
// returns InputSame=true, asking the driver to call it again with the
// same input before advancing to the next chunk.
//
// Flush is called once input is exhausted; a filter returns Done=false
// from Flush as long as it still has buffered output to drain (e.g. a
// gzip writer's trailer).
type Filter interface {
	// Name identifies the filter for Group.Result lookups.
	Name() string
	// Process consumes in (which may be empty on a flush-drive) and
	// returns produced output plus whether it needs to be re-driven
	// with the same input before the caller advances.
	Process(in []byte) (out []byte, inputSame bool, err error)
	// Flush is called with no further input once the upstream source
	// is exhausted. It returns output and whether the filter has
	// reached its terminal state.
	Flush() (out []byte, done bool, err error)
	// Result returns a filter-specific value surfaced after Close
	// (a hash digest, a running size, a list of bad page indexes).
	// Filters with no result return nil.
	Result() interface{}
}

// Group is an ordered chain of filters. Bytes pushed into the head
// flow through each filter's Process in turn; Close flushes every
// filter left to right until each reports Done, then gathers results.
type Group struct {
	filters []Filter
	closed  bool
}

// NewGroup returns an empty filter group. Add filters with Add, head
// (closest to the raw stream) first.
func NewGroup(filters ...Filter) *Group {
	return &Group{filters: filters}
}

// Add appends a filter to the tail of the group.
func (g *Group) Add(f Filter) {
	g.filters = append(g.filters, f)
}

// Process drives a chunk through every filter in order, handling each
// filter's InputSame request by re-invoking it until it accepts the
// whole chunk, then passing its output on to the next filter.
func (g *Group) Process(chunk []byte) ([]byte, error) {
	cur := chunk
	for _, f := range g.filters {
		var out []byte
		in := cur
		for {
			produced, inputSame, err := f.Process(in)
			if err != nil {
				return nil, errors.Annotatef(err, "filter %q", f.Name())
			}
			out = append(out, produced...)
			if !inputSame {
				break
			}
			in = nil // the filter asked to be redriven with the same (already-buffered) input
		}
		cur = out
	}
	return cur, nil
}

// Close flushes every filter left to right until each reports Done,
// returning the final output bytes that drain out the tail.
func (g *Group) Close() ([]byte, error) {
	if g.closed {
		return nil, errors.Errorf("filter group already closed")
	}
	g.closed = true

	var cur []byte
	for _, f := range g.filters {
		// Push whatever the upstream filter still had buffered through
		// this filter's ordinary input path first.
		if len(cur) > 0 {
			out, err := driveOne(f, cur)
			if err != nil {
				return nil, errors.Annotatef(err, "filter %q", f.Name())
			}
			cur = out
		} else {
			cur = nil
		}

		flushed, err := flushOne(f)
		if err != nil {
			return nil, errors.Annotatef(err, "filter %q", f.Name())
		}
		cur = append(cur, flushed...)
	}
	return cur, nil
}

func driveOne(f Filter, in []byte) ([]byte, error) {
	var out []byte
	for {
		produced, inputSame, err := f.Process(in)
		if err != nil {
			return nil, err
		}
		out = append(out, produced...)
		if !inputSame {
			return out, nil
		}
		in = nil
	}
}

func flushOne(f Filter) ([]byte, error) {
	var out []byte
	for {
		produced, done, err := f.Flush()
		if err != nil {
			return nil, err
		}
		out = append(out, produced...)
		if done {
			return out, nil
		}
	}
}

// Result returns the named filter's surfaced result, or nil if no
// filter with that name is in the group.
func (g *Group) Result(name string) interface{} {
	for _, f := range g.filters {
		if f.Name() == name {
			return f.Result()
		}
	}
	return nil
}
