// Package cstr converts NUL-terminated kernel strings.
package cstr

// ToString returns the bytes of c up to the first NUL.
func ToString(c []byte) string {
	n := -1
	for i, b := range c {
		if b == 0 {
			break
		}
		n = i
	}
	return string(c[:n+1])
}
