package util

import (
	"golang.org/x/exp/constraints"
)

// InArray reports whether a is a member of b.
func InArray[T constraints.Ordered](a T, b []T) bool {
	for _, item := range b {
		if a == item {
			return true
		}
	}
	return false
}

// LastItem returns the last element of a.
func LastItem[T any](a []T) T {
	return a[len(a)-1]
}
