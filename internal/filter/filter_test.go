package filter

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func runGroup(t *testing.T, g *Group, input []byte) []byte {
	t.Helper()
	out, err := g.Process(input)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	tail, err := g.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	return append(out, tail...)
}

func TestHashFilterSHA256(t *testing.T) {
	data := []byte("the quick brown fox")
	f := NewSHA256Filter()
	g := NewGroup(f)
	out := runGroup(t, g, data)
	if !bytes.Equal(out, data) {
		t.Fatalf("hash filter must pass bytes through unchanged")
	}
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])
	if g.Result("hash-sha256") != want {
		t.Fatalf("digest = %v, want %v", g.Result("hash-sha256"), want)
	}
}

func TestSizeFilter(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)
	g := NewGroup(NewSizeFilter())
	runGroup(t, g, data)
	if g.Result("size") != int64(1000) {
		t.Fatalf("size = %v, want 1000", g.Result("size"))
	}
}

func TestGzipRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("hello world "), 200)

	cg := NewGroup(NewGzipCompressFilter(0))
	compressed := runGroup(t, cg, data)
	if bytes.Equal(compressed, data) {
		t.Fatalf("compressed output should differ from input")
	}

	dg := NewGroup(NewGzipDecompressFilter())
	decompressed := runGroup(t, dg, compressed)
	if !bytes.Equal(decompressed, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(decompressed), len(data))
	}
}

func TestLz4RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("another test payload "), 300)

	cg := NewGroup(NewLz4CompressFilter())
	compressed := runGroup(t, cg, data)

	dg := NewGroup(NewLz4DecompressFilter())
	decompressed := runGroup(t, dg, compressed)
	if !bytes.Equal(decompressed, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(decompressed), len(data))
	}
}

func TestCipherRoundTrip(t *testing.T) {
	data := []byte("sensitive backup manifest contents")
	passphrase := "correct-horse-battery-staple"

	eg := NewGroup(NewCipherEncryptFilter(passphrase))
	ciphertext := runGroup(t, eg, data)
	if bytes.Contains(ciphertext, data) {
		t.Fatalf("ciphertext must not contain the plaintext")
	}

	dg := NewGroup(NewCipherDecryptFilter(passphrase))
	plaintext := runGroup(t, dg, ciphertext)
	if !bytes.Equal(plaintext, data) {
		t.Fatalf("got %q, want %q", plaintext, data)
	}
}

func TestCipherWrongPassphraseFailsToUnpad(t *testing.T) {
	data := []byte("top secret")
	eg := NewGroup(NewCipherEncryptFilter("correct"))
	ciphertext := runGroup(t, eg, data)

	dg := NewGroup(NewCipherDecryptFilter("incorrect"))
	if _, err := dg.Process(ciphertext); err != nil {
		t.Fatalf("Process should not error: %v", err)
	}
	if _, err := dg.Close(); err == nil {
		t.Fatalf("expected decrypting with the wrong passphrase to fail")
	}
}

func TestChainedFilters(t *testing.T) {
	data := bytes.Repeat([]byte("chained payload "), 50)

	size := NewSizeFilter()
	g := NewGroup(size, NewGzipCompressFilter(0))
	compressed := runGroup(t, g, data)

	if size.Result() != int64(len(data)) {
		t.Fatalf("size = %v, want %d", size.Result(), len(data))
	}

	dg := NewGroup(NewGzipDecompressFilter())
	decompressed := runGroup(t, dg, compressed)
	if !bytes.Equal(decompressed, data) {
		t.Fatalf("chained round trip mismatch")
	}
}

func TestBufferCaptureFilter(t *testing.T) {
	data := []byte("capture me")
	bc := NewBufferCaptureFilter()
	g := NewGroup(bc)
	out := runGroup(t, g, data)
	if !bytes.Equal(out, data) {
		t.Fatalf("buffer-capture must pass bytes through unchanged")
	}
	buf := g.Result("buffer-capture")
	b, ok := buf.(interface{ Bytes() []byte })
	if !ok {
		t.Fatalf("unexpected result type %T", buf)
	}
	if !bytes.Equal(b.Bytes(), data) {
		t.Fatalf("captured %q, want %q", b.Bytes(), data)
	}
}

func TestPageChecksumFilterCleanPage(t *testing.T) {
	page := make([]byte, pageSize)
	for i := range page {
		page[i] = byte(i)
	}
	page[pageChecksumOffset] = 0
	page[pageChecksumOffset+1] = 0
	sum := pageChecksum(page, 0)
	page[pageChecksumOffset] = byte(sum)
	page[pageChecksumOffset+1] = byte(sum >> 8)

	f := NewPageChecksumFilter()
	g := NewGroup(f)
	runGroup(t, g, page)

	bad := g.Result("page-checksum-verify").([]uint32)
	if len(bad) != 0 {
		t.Fatalf("expected no bad blocks, got %v", bad)
	}
}

func TestPageChecksumFilterCorruptPage(t *testing.T) {
	page := make([]byte, pageSize)
	for i := range page {
		page[i] = byte(i)
	}
	page[pageChecksumOffset] = 0
	page[pageChecksumOffset+1] = 0
	sum := pageChecksum(page, 0)
	page[pageChecksumOffset] = byte(sum)
	page[pageChecksumOffset+1] = byte(sum >> 8)

	// Corrupt a data byte after the checksum was computed.
	page[100] ^= 0xff

	f := NewPageChecksumFilter()
	g := NewGroup(f)
	runGroup(t, g, page)

	bad := g.Result("page-checksum-verify").([]uint32)
	if len(bad) != 1 || bad[0] != 0 {
		t.Fatalf("expected block 0 flagged as bad, got %v", bad)
	}
}
