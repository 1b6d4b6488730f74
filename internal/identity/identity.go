// Package identity derives the stable process identity used to namespace
// inflight task ids so that any id's owning process can be recovered
// deterministically from the id alone.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
)

var (
	once    sync.Once
	current string
)

// Process returns this process's identity, formatted as
// "<sanitized-hostname>:<pid>:<8-byte-hex>". The random suffix
// disambiguates two processes that share a hostname and, across a pid
// wraparound, a pid.
func Process() string {
	once.Do(func() {
		current = generate()
	})
	return current
}

func generate() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	host = sanitize(host)

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable entropy
		// starvation; fall back to a fixed suffix rather than panic.
		copy(buf, []byte{0xde, 0xad, 0xbe, 0xef, 0xde, 0xad, 0xbe, 0xef})
	}

	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), hex.EncodeToString(buf))
}

func sanitize(host string) string {
	var b strings.Builder
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ProcessPrefix extracts the owning process identity from a namespaced
// task id. A root correlation id has the form "<identity>/<uuid>"; a
// redirect hop's id extends it to "<identity>/<uuid>/<hop>". Since
// Process never itself contains "/", the prefix is always the segment
// before the *first* "/" regardless of how many hop suffixes follow —
// using the last "/" instead would return "<identity>/<uuid>" for any
// hop past the first, which never matches an entry in the live-process
// set. Returns "" if taskID does not contain the separator.
func ProcessPrefix(taskID string) string {
	idx := strings.Index(taskID, "/")
	if idx < 0 {
		return ""
	}
	return taskID[:idx]
}
