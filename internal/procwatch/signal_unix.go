package procwatch

import (
	"errors"
	"syscall"
)

type osSignaler struct{}

// Alive probes the pid with signal 0. EPERM means the process exists but is
// owned by someone else; still alive for our purposes.
func (osSignaler) Alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func (osSignaler) Terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
