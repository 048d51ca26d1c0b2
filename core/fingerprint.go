package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Fingerprint is the deterministic cache key for one reading request. Two
// requests with identical cards, orientations, question, and extra context
// share a fingerprint; collisions across different logical requests are an
// accepted risk of the underlying hash, not actively mitigated.
type Fingerprint string

// FingerprintReading derives the fingerprint from the ordered spread, the
// question (empty string meaning no question), and the extra context with
// its keys sorted so map iteration order cannot leak into the hash.
func FingerprintReading(cards []DrawnCard, question string, extra map[string]string) Fingerprint {
	h := sha256.New()

	writeString := func(s string) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}

	for _, d := range cards {
		writeString(d.Card.Name)
		if d.Reversed {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}

	writeString(question)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeString(k)
		writeString(extra[k])
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
