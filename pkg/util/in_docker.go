// Package util holds small helpers about the process environment
package util

import "os"

// IsRunningInDocker reports whether the process runs inside a docker
// container. Used to refuse creating a fresh sqlite file that would be lost
// together with the container.
func IsRunningInDocker() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
