package util

import (
	"golang.org/x/exp/constraints"
)

// GetV returns the value for key, or the default when the key is absent.
func GetV[K constraints.Ordered, V any](data map[K]V, key K, defaultV V) V {
	if _, ok := data[key]; !ok {
		return defaultV
	}
	return data[key]
}

// IsExist reports whether every key is present.
func IsExist[K constraints.Ordered, V any](data map[K]V, key ...K) bool {
	for _, item := range key {
		if _, ok := data[item]; !ok {
			return false
		}
	}
	return true
}

// Merge merges maps left to right, later maps winning on key collisions.
func Merge[K constraints.Ordered, V any](m1 map[K]V, m ...map[K]V) map[K]V {
	result := map[K]V{}
	for k, item := range m1 {
		result[k] = item
	}
	for _, item := range m {
		for k, v := range item {
			result[k] = v
		}
	}
	return result
}
