// Package fingerprint computes the deterministic digest of spec.md
// section 4.2: a fixed cryptographic hash over (app_name or code_blob),
// resolved args/kwargs, and ordered dependency fingerprints.
//
// The length-prefixed-field hashing shape is grounded on
// script-weaver's taskdef hash; blake2b is used in place of sha256 so
// the fingerprint has its own hash identity independent of whatever
// algorithm a cache payload or transport layer might use elsewhere.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Compute hashes identity (either the app's code_blob, or its
// app_name when the app is "named" for cache aliasing) together with
// the JSON-serialized, future-substituted argument tree and the
// ordered fingerprints of every dependency.
func Compute(identity string, argsNode, kwargsNode any, depFingerprints []string) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	writeField := func(b []byte) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(b)))
		h.Write(length[:])
		h.Write(b)
	}
	writeField([]byte(identity))

	argsJSON, err := json.Marshal(argsNode)
	if err != nil {
		return "", err
	}
	writeField(argsJSON)

	kwargsJSON, err := json.Marshal(kwargsNode)
	if err != nil {
		return "", err
	}
	writeField(kwargsJSON)

	var depCount [8]byte
	binary.BigEndian.PutUint64(depCount[:], uint64(len(depFingerprints)))
	h.Write(depCount[:])
	for _, dep := range depFingerprints {
		writeField([]byte(dep))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
