package helpers

// Pointer returns a pointer to a copy of v.
func Pointer[T any](v T) *T {
	return &v
}

// Float64Pointer returns a pointer to the given float64 value.
func Float64Pointer(f float64) *float64 {
	return &f
}
