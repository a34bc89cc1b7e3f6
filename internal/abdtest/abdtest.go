// Package abdtest provides shared test helpers: deterministic byte
// patterns for payload round-trips and a panic assertion. It deliberately
// has no dependency on the abd package so core tests can use it too.
package abdtest

import "testing"

// Pattern returns n bytes where byte i holds i mod 256.
func Pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// Repeat returns n copies of the byte v.
func Repeat(v byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

// MustPanic asserts that fn panics.
func MustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}
