//go:build unix

package workdir

import (
	"golang.org/x/sys/unix"
)

// saveCurrent keeps a descriptor on the current directory, so restoring
// works even if the directory is renamed while the scope is open.
func saveCurrent() (func() error, error) {
	fd, err := unix.Open(".", unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return func() error {
		defer unix.Close(fd)
		return unix.Fchdir(fd)
	}, nil
}
