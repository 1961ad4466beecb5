package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fnpack/fnpack/internal/bench"
)

// Hash returns the content hash of a code package's sources: the benchmark's
// language and support files in langDir, the workflow definition one level
// up when present, and the deployment wrapper files in wrapperDir. Files are
// hashed in sorted path order, so the result doesn't depend on filesystem
// enumeration order.
func Hash(langDir, wrapperDir string, language bench.Language) (string, error) {
	files, err := selectFiles(langDir, language)
	if err != nil {
		return "", fmt.Errorf("hash code package: %w", err)
	}

	definition := filepath.Join(langDir, "..", "definition.json")
	if fileExists(definition) {
		files = append(files, definition)
	}

	wrappers, err := filepath.Glob(filepath.Join(wrapperDir, language.WrapperPattern()))
	if err != nil {
		return "", fmt.Errorf("hash code package: %w", err)
	}
	sort.Strings(wrappers)
	files = append(files, wrappers...)

	h := sha256.New()
	for _, file := range files {
		// The name goes in too, so renames and deletions change the hash.
		_, _ = io.WriteString(h, filepath.Base(file))
		_, _ = h.Write([]byte{0})
		if err = hashFile(h, file); err != nil {
			return "", fmt.Errorf("hash code package: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// selectFiles returns the files in langDir matching the language's source
// patterns and the support patterns, deduplicated and sorted.
func selectFiles(langDir string, language bench.Language) ([]string, error) {
	patterns := append(language.SourcePatterns(), bench.SupportPatterns...)

	var files []string
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(langDir, pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)

	return files, nil
}

func hashFile(h io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(h, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
