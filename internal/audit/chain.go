package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// canonicalize returns the sorted-key JSON form of a serialized event with the
// hash field removed. Numbers keep their literal text.
func canonicalize(raw []byte) ([]byte, map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, nil, err
	}
	if fields == nil {
		return nil, nil, fmt.Errorf("event is not a JSON object")
	}

	stored := make(map[string]any, len(fields))
	for k, v := range fields {
		stored[k] = v
	}
	delete(fields, "hash")

	canonical, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, err
	}
	return canonical, stored, nil
}

// chainHash is sha256(canonical || previousHash) in hex.
func chainHash(canonical []byte, previousHash string) string {
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil))
}

// hashEvent computes the chain hash for ev, which must already carry PreviousHash.
func hashEvent(ev *Event) (string, error) {
	copyEv := *ev
	copyEv.Hash = ""
	raw, err := json.Marshal(&copyEv)
	if err != nil {
		return "", err
	}
	canonical, _, err := canonicalize(raw)
	if err != nil {
		return "", err
	}
	return chainHash(canonical, ev.PreviousHash), nil
}
