package cryptography

import "testing"

func TestHashIsDeterministic(t *testing.T) {
	first := IDHasher.Hash("123456789012345678")
	second := IDHasher.Hash("123456789012345678")
	if first != second {
		t.Errorf("Hash() not deterministic: %q != %q", first, second)
	}
	if len(first) != 64 {
		t.Errorf("Hash() length = %d, want 64 hex chars", len(first))
	}
}

func TestHashDistinguishesInputs(t *testing.T) {
	if IDHasher.Hash("123456789") == IDHasher.Hash("123456780") {
		t.Error("Hash() collided on different identifiers")
	}
}
