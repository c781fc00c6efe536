package post

import "testing"

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
		Post(func() {
			a = 2
		})
	})
	Tick()
	if a != 2 {
		t.Errorf("a should be 2, not %d", a)
	}
}
