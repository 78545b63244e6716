package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
)

// Fingerprint hashes the identity (name, size, mtime) of a set of input
// files. Stages use it as their idempotency key: re-running with unchanged
// inputs reuses the existing artifact.
func Fingerprint(paths ...string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, p := range sorted {
		info, err := os.Stat(p)
		if err != nil {
			fmt.Fprintf(h, "%s|missing\n", p)
			continue
		}
		fmt.Fprintf(h, "%s|%d|%d\n", p, info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}
