package cache

import (
	"strings"
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	k1 := Fingerprint("gemini", "explain gradient descent")
	k2 := Fingerprint("gemini", "explain gradient descent")
	if k1 != k2 {
		t.Errorf("fingerprint should be deterministic: %s != %s", k1, k2)
	}
	if !strings.HasPrefix(k1, "cache:") {
		t.Errorf("fingerprint should have prefix 'cache:', got %s", k1)
	}
}

func TestFingerprint_TrimsWhitespace(t *testing.T) {
	k1 := Fingerprint("gemini", "explain gradient descent")
	k2 := Fingerprint("gemini", "  explain gradient descent \n")
	if k1 != k2 {
		t.Error("surrounding whitespace should not change the fingerprint")
	}
}

func TestFingerprint_ProviderSeparation(t *testing.T) {
	k1 := Fingerprint("gemini", "hi")
	k2 := Fingerprint("openai", "hi")
	if k1 == k2 {
		t.Error("different providers should produce different fingerprints")
	}
}

func TestFingerprint_PrefixTruncation(t *testing.T) {
	base := strings.Repeat("a", fingerprintPrefixLen)

	// Same prefix, different tails — one cache entry.
	k1 := Fingerprint("gemini", base+"tail-one")
	k2 := Fingerprint("gemini", base+"tail-two")
	if k1 != k2 {
		t.Error("prompts differing only past the prefix should share a fingerprint")
	}

	// Difference inside the prefix — distinct entries.
	k3 := Fingerprint("gemini", "b"+base[1:])
	if k1 == k3 {
		t.Error("prompts differing inside the prefix should not share a fingerprint")
	}
}
