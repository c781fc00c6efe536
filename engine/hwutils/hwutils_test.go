package hwutils

import (
	"fmt"
	"testing"
)

func TestRunPanicless(t *testing.T) {
	if !RunPanicless(func() {
		panic(1)
	}) {
		t.Fail()
	}
	if RunPanicless(func() {}) {
		t.Fail()
	}
}

func TestCatchPanic(t *testing.T) {
	if err := CatchPanic(func() {
		panic(fmt.Errorf("bad"))
	}); err == nil {
		t.Fail()
	}
	if err := CatchPanic(func() {}); err != nil {
		t.Fail()
	}
}

func TestNextLargerKey(t *testing.T) {
	if NextLargerKey("a") != "a\x00" {
		t.Fail()
	}
	if !(NextLargerKey("a") > "a") {
		t.Fail()
	}
	if !(NextLargerKey("a") < "a\x01") {
		t.Fail()
	}
}
