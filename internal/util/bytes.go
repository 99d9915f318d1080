package util

// WipeBytes best-effort zeroes the provided byte slice in place.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// WipeArray32 best-effort zeroes the provided 32-byte array in place.
func WipeArray32(a *[32]byte) {
	for i := range a {
		a[i] = 0
	}
}
