package main

import (
	"bytes"
	"testing"

	"github.com/gogpu/tilereplay/trace"
)

func TestSamples(t *testing.T) {
	for _, name := range names() {
		t.Run(name, func(t *testing.T) {
			tr := samples[name]()
			if err := tr.Validate(); err != nil {
				t.Fatalf("Validate() = %v", err)
			}
			var buf bytes.Buffer
			if err := trace.Encode(&buf, tr); err != nil {
				t.Fatalf("Encode() = %v", err)
			}
			back, err := trace.Decode(&buf)
			if err != nil {
				t.Fatalf("Decode() = %v", err)
			}
			if back.Stats() != tr.Stats() {
				t.Errorf("Stats() after decode = %+v, want %+v", back.Stats(), tr.Stats())
			}
		})
	}
}
