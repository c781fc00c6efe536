package uuid

import "testing"

func TestGenUUID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		uuid := GenUUID()
		if len(uuid) != UUID_LENGTH {
			t.FailNow()
		}
		if seen[uuid] {
			t.Fatalf("duplicate uuid: %s", uuid)
		}
		seen[uuid] = true
	}
}

func BenchmarkGenUUID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenUUID()
	}
}
