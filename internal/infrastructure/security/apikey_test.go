package security

import "testing"

func TestHashVerifyRoundTrip(t *testing.T) {
	h := NewAPIKeyHasher(DefaultAPIKeyParams())
	encoded, err := h.Hash("bcx_deadbeef")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Verify("bcx_deadbeef", encoded) {
		t.Error("correct key should verify")
	}
	if h.Verify("bcx_wrong", encoded) {
		t.Error("wrong key should not verify")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h := NewAPIKeyHasher(DefaultAPIKeyParams())
	for _, encoded := range []string{"", "plain", "$argon2id$v=19$garbage"} {
		if h.Verify("key", encoded) {
			t.Errorf("malformed hash %q should not verify", encoded)
		}
	}
}

func TestVerifyHonorsEncodedLengths(t *testing.T) {
	// Hashes carry their own salt and key lengths; verification must not
	// assume the current defaults.
	custom := NewAPIKeyHasher(APIKeyParams{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  24,
		KeyLength:   48,
	})
	encoded, err := custom.Hash("bcx_deadbeef")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	verifier := NewAPIKeyHasher(DefaultAPIKeyParams())
	if !verifier.Verify("bcx_deadbeef", encoded) {
		t.Error("hash under non-default lengths should verify")
	}
	if verifier.Verify("bcx_wrong", encoded) {
		t.Error("wrong key should not verify")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := NewAPIKeyHasher(DefaultAPIKeyParams())
	a, err := h.Hash("bcx_same")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Hash("bcx_same")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two hashes of the same key should differ by salt")
	}
}
