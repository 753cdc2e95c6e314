package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaolacci/murmur3"
)

// configFiles is the fixed set of documents a fingerprint covers, in the
// order they contribute to the hash.
var configFiles = [...]string{"defaults.yaml", "experiments.yaml", "kpis.yaml"}

// Fingerprint hashes the three configuration documents in dir with
// murmur3 to produce a short change token. This is a non-cryptographic
// hash used purely to detect "did anything change since the last load" —
// it must never be used for the user-to-branch assignment hash, which is
// normatively SHA-256 (see internal/assign).
func (l *Loader) Fingerprint(dir string) (string, error) {
	h := murmur3.New128()

	for _, name := range configFiles {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("could not read %s: %w", name, err)
		}
		if _, err := h.Write(b); err != nil {
			return "", err
		}
	}

	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo), nil
}
