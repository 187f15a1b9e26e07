package common

// WipeByteArray zeroes b in place. It is used to drop passwords from
// memory once they are no longer needed.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
