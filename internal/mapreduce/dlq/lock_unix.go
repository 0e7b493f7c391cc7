//go:build unix

package dlq

import (
	"fmt"
	"os"
	"syscall"
)

// lockFile takes an exclusive advisory lock on a sidecar ".lock" file
// next to path, so concurrent re-enqueues of the same DLQ item
// serialize their read-modify-write instead of racing. POSIX-only, per
// the storage layout's other atomic-rename assumptions.
func lockFile(path string) (unlock func(), err error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock: %w", err)
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
