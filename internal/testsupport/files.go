package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteVideoFixture creates a stand-in recording at path: an ISO BMFF
// ftyp header so the file passes the recorder's container signature
// check, padded with zeros up to the requested size. Sizes smaller than
// the header round up to it.
func WriteVideoFixture(t testing.TB, path string, size int64) {
	t.Helper()

	header := []byte{0, 0, 0, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}
	if size < int64(len(header)) {
		size = int64(len(header))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.Write(header); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("grow %s to %d bytes: %v", path, size, err)
	}
}
