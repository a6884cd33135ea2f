package state

// Ptr returns a pointer to v, for building Patch values inline.
func Ptr[T any](v T) *T { return &v }
