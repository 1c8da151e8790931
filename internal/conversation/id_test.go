package conversation

import "testing"

func TestIDSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d", "16fd2706-8baf-433b-82eb-8c7fada847da"},
		{"a", "a"},
	}
	for _, p := range pairs {
		if ID(p[0], p[1]) != ID(p[1], p[0]) {
			t.Errorf("ID(%q,%q) != ID(%q,%q)", p[0], p[1], p[1], p[0])
		}
	}
}

func TestIDStable(t *testing.T) {
	first := ID("alice", "bob")
	for i := 0; i < 100; i++ {
		if got := ID("alice", "bob"); got != first {
			t.Fatalf("ID not stable: got %q, want %q", got, first)
		}
	}
	if first != "alice_bob" {
		t.Fatalf("expected sorted join, got %q", first)
	}
}
