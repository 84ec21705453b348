package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CaseFile collects the output of one scan into its own directory.
type CaseFile struct {
	CaseID      string
	StoragePath string
}

func NewCaseFile(caseID, storagePath string) *CaseFile {
	return &CaseFile{
		CaseID:      caseID,
		StoragePath: storagePath,
	}
}

// Dir returns the case directory.
func (c *CaseFile) Dir() string {
	return filepath.Join(c.StoragePath, c.CaseID)
}

// Write stores report.txt, report.json and events.json, then seals the case
// with a SHA-256 manifest of the written files. It returns the case directory.
func (c *CaseFile) Write(r Report) (string, error) {
	// 1. Ensure storage exists
	dir := c.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create case dir: %w", err)
	}

	// 2. Write artifacts
	writers := map[string]func(io.Writer) error{
		"report.txt":  func(w io.Writer) error { return WriteTextReport(w, r) },
		"report.json": func(w io.Writer) error { return WriteJSONReport(w, r) },
		"events.json": func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(r.Events)
		},
	}
	for name, write := range writers {
		if err := writeFile(filepath.Join(dir, name), write); err != nil {
			return "", err
		}
	}

	// 3. Seal
	if _, err := c.Seal(); err != nil {
		return "", err
	}
	return dir, nil
}

// Seal hashes every file in the case directory into MANIFEST.sha256.
func (c *CaseFile) Seal() (string, error) {
	dir := c.Dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read case dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && e.Name() != manifestName {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		sum, err := hashFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", name, err)
		}
		fmt.Fprintf(&b, "%s  %s\n", sum, name)
	}

	manifest := filepath.Join(dir, manifestName)
	if err := os.WriteFile(manifest, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return manifest, nil
}

const manifestName = "MANIFEST.sha256"

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
