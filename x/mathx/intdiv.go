package mathx

// SatAdd adds b to a, saturating at the type's maximum.
func SatAdd[T ~uint8 | ~uint16 | ~uint32 | ~uint64](a, b T) T {
	if s := a + b; s >= a {
		return s
	}
	return ^T(0)
}
