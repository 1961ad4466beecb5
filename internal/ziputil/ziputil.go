package ziputil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Zip archives start with the local file header signature,
// or with the end of central directory signature when empty.
var magics = [][]byte{
	{'P', 'K', 0x03, 0x04},
	{'P', 'K', 0x05, 0x06},
}

// IsArchive reports whether the file at name is a zip archive.
// It checks the file's magic bytes, so a renamed archive is still detected.
func IsArchive(name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer func() {
		_ = f.Close()
	}()

	header := make([]byte, 4)
	if _, err = io.ReadFull(f, header); err != nil {
		return false
	}
	for _, magic := range magics {
		if bytes.Equal(header, magic) {
			return true
		}
	}
	return false
}

// PatchEntry rewrites the named entry of the zip archive at name with data.
// All other entries keep their order, compressed content, and metadata,
// and the archive comment is preserved. The rewritten entry moves to the
// end of the archive. If the entry doesn't exist, it is appended.
// The archive is replaced via a sibling temporary file and a rename.
func PatchEntry(name, entry string, data []byte) error {
	r, err := zip.OpenReader(name)
	if err != nil {
		return fmt.Errorf("patch zip entry: %w", err)
	}
	defer func() {
		_ = r.Close()
	}()

	tmp, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".patch-*")
	if err != nil {
		return fmt.Errorf("patch zip entry: %w", err)
	}
	tmpName := tmp.Name()

	err = writePatched(tmp, &r.Reader, entry, data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("patch zip entry: %w", err)
	}

	if err = os.Rename(tmpName, name); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("patch zip entry: %w", err)
	}

	return nil
}

func writePatched(w io.Writer, r *zip.Reader, entry string, data []byte) error {
	zw := zip.NewWriter(w)

	if err := zw.SetComment(r.Comment); err != nil {
		return err
	}

	// Copy keeps the other entries' compressed bytes and headers untouched.
	for _, f := range r.File {
		if f.Name == entry {
			continue
		}
		if err := zw.Copy(f); err != nil {
			return err
		}
	}

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:   entry,
		Method: zip.Deflate,
	})
	if err != nil {
		return err
	}
	if _, err = fw.Write(data); err != nil {
		return err
	}

	return zw.Close()
}
