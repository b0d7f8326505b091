// Package info implements the checksum-sealed key/value document format
// used for the stanza registries (archive.info, backup.info) and the
// per-backup manifest: INI-like sections of key=JSON-value lines,
// written deterministically (sorted by section then key) and sealed
// with a trailing [backrest] section carrying a SHA-1 checksum of the
// preceding bytes.
//
// The line format is hand-rolled rather than built on gopkg.in/ini.v1
// (used elsewhere in this repository for internal/config's genuine INI
// option files): a real INI parser's quote-stripping and
// value-normalization rules are tuned for scalar option values, and
// this format's checksum seal is only meaningful if encode and decode
// agree on the exact bytes of an embedded JSON value, quotes and all —
// a guarantee a general-purpose library doesn't make. This mirrors the
// teacher's own pattern of hand-rolling wire formats it fully controls
// (the pack codec being the other example in this repository).
package info

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/juju/errors"
)

const sealSection = "backrest"

// Document is a generic checksum-sealed section/key/JSON-value store.
// ArchiveInfo, BackupInfo, and Manifest are all typed views over one.
type Document struct {
	sections map[string]map[string]json.RawMessage
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{sections: make(map[string]map[string]json.RawMessage)}
}

// Set marshals value as JSON and stores it under section/key.
func (d *Document) Set(section, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Annotatef(err, "marshal %s.%s", section, key)
	}
	if d.sections[section] == nil {
		d.sections[section] = make(map[string]json.RawMessage)
	}
	d.sections[section][key] = raw
	return nil
}

// Get unmarshals section/key into out, reporting whether the key was
// present at all.
func (d *Document) Get(section, key string, out interface{}) (bool, error) {
	sec, ok := d.sections[section]
	if !ok {
		return false, nil
	}
	raw, ok := sec[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, errors.Annotatef(err, "unmarshal %s.%s", section, key)
	}
	return true, nil
}

// SectionKeys returns the keys present under section, sorted.
func (d *Document) SectionKeys(section string) []string {
	sec := d.sections[section]
	keys := make([]string, 0, len(sec))
	for k := range sec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sections returns every section name that has at least one key set,
// sorted.
func (d *Document) Sections() []string {
	names := make([]string, 0, len(d.sections))
	for name, keys := range d.sections {
		if len(keys) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Encode renders the document as sorted section/key=JSON-value lines
// followed by the [backrest] checksum seal.
func Encode(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	for _, secName := range d.Sections() {
		buf.WriteString("[" + secName + "]\n")
		for _, key := range d.SectionKeys(secName) {
			buf.WriteString(key)
			buf.WriteByte('=')
			buf.Write(d.sections[secName][key])
			buf.WriteByte('\n')
		}
	}

	sum := sha1.Sum(buf.Bytes())
	checksum, err := json.Marshal(hex.EncodeToString(sum[:]))
	if err != nil {
		return nil, errors.Trace(err)
	}
	buf.WriteString("[" + sealSection + "]\nchecksum=" + string(checksum) + "\n")
	return buf.Bytes(), nil
}

// ErrChecksumMismatch is returned by Decode when the trailing seal's
// checksum doesn't match the preceding bytes — a torn write or bit rot.
var ErrChecksumMismatch = errors.New("info document checksum mismatch")

// Decode parses data, verifying the trailing [backrest] checksum seal
// against the bytes that precede it before returning the document.
func Decode(data []byte) (*Document, error) {
	marker := []byte("[" + sealSection + "]\n")
	idx := bytes.LastIndex(data, marker)
	if idx < 0 {
		return nil, errors.New("missing [backrest] checksum seal")
	}
	prefix := data[:idx]
	sealBody := data[idx+len(marker):]

	rawChecksum, err := lineValue(sealBody, "checksum")
	if err != nil {
		return nil, errors.Annotate(err, "parse checksum seal")
	}
	var checksum string
	if err := json.Unmarshal([]byte(rawChecksum), &checksum); err != nil {
		return nil, errors.Annotate(err, "decode checksum value")
	}

	sum := sha1.Sum(prefix)
	if hex.EncodeToString(sum[:]) != checksum {
		return nil, errors.Trace(ErrChecksumMismatch)
	}

	doc := NewDocument()
	var curSection string
	for _, line := range strings.Split(string(prefix), "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			curSection = line[1 : len(line)-1]
			continue
		}
		if curSection == "" {
			return nil, errors.Errorf("key/value line %q outside any section", line)
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.Errorf("malformed line %q", line)
		}
		if doc.sections[curSection] == nil {
			doc.sections[curSection] = make(map[string]json.RawMessage)
		}
		doc.sections[curSection][key] = json.RawMessage(value)
	}
	return doc, nil
}

// lineValue finds "key=value" within body (used only for the
// single-key [backrest] seal section) and returns value.
func lineValue(body []byte, key string) (string, error) {
	prefix := key + "="
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix), nil
		}
	}
	return "", errors.Errorf("key %q not found", key)
}
