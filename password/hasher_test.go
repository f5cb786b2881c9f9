package password

import (
	"strings"
	"testing"
)

func testParams() Params {
	return Params{
		Memory:      16 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=19$m=16384,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	if !hasher.Verify("P@ssw0rd-Ascii", hash) {
		t.Fatal("expected password verification to succeed")
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	hasher, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if hasher.Verify("wrong-password", hash) {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestHashesAreSalted(t *testing.T) {
	hasher, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	first, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if first == second {
		t.Fatal("expected two hashes of the same password to differ")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	for _, encoded := range []string{
		"",
		"plainly-not-a-hash",
		"$argon2id$v=19$m=16384,t=1,p=1$short",
		"$argon2i$v=19$m=16384,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=16384,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=16384,t=1,p=1$!!!$aGFzaA",
	} {
		if hasher.Verify("whatever", encoded) {
			t.Fatalf("expected verification to fail for malformed hash %q", encoded)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	oldHasher, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher(old) error: %v", err)
	}

	hash, err := oldHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	newHasher, err := NewHasher(Params{
		Memory:      32 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher(new) error: %v", err)
	}

	if !newHasher.NeedsRehash(hash) {
		t.Fatal("expected hash with weaker parameters to need a rehash")
	}
	if oldHasher.NeedsRehash(hash) {
		t.Fatal("expected hash with current parameters to not need a rehash")
	}
	if !oldHasher.NeedsRehash("garbage") {
		t.Fatal("expected malformed hash to need a rehash")
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	weak := []Params{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 16384, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 16384, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 16384, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32},
		{Memory: 16384, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, p := range weak {
		if _, err := NewHasher(p); err == nil {
			t.Fatalf("case %d: expected weak params to be rejected", i)
		}
	}
}
