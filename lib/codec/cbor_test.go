// Copyright 2026 The Voteroom Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	record := map[string]any{
		"room":      "R1",
		"candidate": 2,
		"wallet":    "0xabc",
	}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same record produced different encodings")
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	type v1 struct {
		Room      string `cbor:"room"`
		Candidate int    `cbor:"candidate"`
		Extra     string `cbor:"extra"`
	}
	type v0 struct {
		Room      string `cbor:"room"`
		Candidate int    `cbor:"candidate"`
	}

	data, err := Marshal(v1{Room: "R1", Candidate: 3, Extra: "future"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got v0
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Room != "R1" || got.Candidate != 3 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
