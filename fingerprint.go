package dataagent

import (
	"os"
	"time"
)

// Fingerprint is a cheap, deterministic signal of source-file change:
// file size plus modification time captured at load.
type Fingerprint struct {
	Size    int64
	ModTime time.Time
}

// fingerprintOf captures the current fingerprint of a file.
func fingerprintOf(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Equal reports whether two fingerprints describe the same file state.
func (fp Fingerprint) Equal(other Fingerprint) bool {
	return fp.Size == other.Size && fp.ModTime.Equal(other.ModTime)
}

// IsZero reports whether the fingerprint is unset.
func (fp Fingerprint) IsZero() bool {
	return fp.Size == 0 && fp.ModTime.IsZero()
}
