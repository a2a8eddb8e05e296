//go:build !linux

package player

// ShmSupported is linux only
func ShmSupported() bool {
	return false
}
