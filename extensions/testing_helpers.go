package extensions

import (
	"math"
	"testing"
)

func AssertAreEqual[T comparable](t *testing.T, name string, expected T, actual T) {
	t.Helper()
	if expected != actual {
		t.Fatalf("value mismatch for %s, expected %v, got %v", name, expected, actual)
	}
}

// AssertWithinTolerance compares floats that went through a database round trip or a numerical routine.
func AssertWithinTolerance(t *testing.T, name string, expected, actual, tolerance float64) {
	t.Helper()
	if math.IsNaN(actual) || math.Abs(expected-actual) > tolerance {
		t.Fatalf("value mismatch for %s, expected %v within %v, got %v", name, expected, tolerance, actual)
	}
}

// AssertNillability checks presence rather than value, missing forecasts and prices come back as nil pointers.
func AssertNillability[T any](t *testing.T, name string, expectNil bool, actual *T) {
	t.Helper()
	if (actual == nil) != expectNil {
		t.Fatalf("nil mismatch for %s, expected nil to be %v, got %v", name, expectNil, actual == nil)
	}
}
