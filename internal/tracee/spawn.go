// Package tracee is rappel's tracee factory (C3): it materializes a
// synthesized ELF image as an executable file handle, forks, and execs it
// under tracing.
//
// The "file handle" is always an anonymous memfd; when a save path is
// given, the image is additionally written there with executable
// permission. The child is started the same way Go's own
// ptrace-based debugging tooling starts a traced child: via os/exec with
// SysProcAttr.Ptrace set, which performs PTRACE_TRACEME before the exec —
// no third-party library wraps this primitive any better than the
// syscall package's own flag for it (see DESIGN.md).
package tracee

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Handle is the result of a successful Spawn: the pid to trace and the
// *exec.Cmd that owns the underlying OS process record.
type Handle struct {
	Pid int
	cmd *exec.Cmd
}

// Spawn writes image to an executable handle, forks, and execs it with
// PTRACE_TRACEME armed. savePath, if non-empty, additionally persists the
// image to that path with executable permission.
func Spawn(image []byte, savePath string) (*Handle, error) {
	fd, err := unix.MemfdCreate("rappel-image", 0)
	if err != nil {
		return nil, errors.Wrap(err, "memfd_create")
	}
	// Deliberately no MFD_CLOEXEC: this fd is itself the exec target via
	// /proc/self/fd, and must survive the fork (and be resolvable by the
	// child's own exec) to be used that way.
	if _, err := unix.Write(fd, image); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "writing image to memfd")
	}
	if _, err := unix.Seek(fd, 0, 0); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "rewinding memfd")
	}

	if savePath != "" {
		if err := os.WriteFile(savePath, image, 0o755); err != nil {
			unix.Close(fd)
			return nil, errors.Wrapf(err, "saving image to %s", savePath)
		}
	}

	path := fmt.Sprintf("/proc/self/fd/%d", fd)
	cmd := exec.Command(path)
	cmd.Args = []string{"rappel-tracee"}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "tracee failed to start")
	}

	// The parent's copy of the memfd is no longer needed once the child
	// has been launched: the tracer overwrites the tracee's code page
	// through ptrace memory writes, never through this fd again.
	unix.Close(fd)

	return &Handle{Pid: cmd.Process.Pid, cmd: cmd}, nil
}

// Release relinquishes the OS-level process handle bookkeeping. It does
// not touch the tracee itself; the tracer is responsible for detaching or
// confirming death before this is called.
func (h *Handle) Release() {
	// cmd.Process.Release avoids a goroutine leak from a future accidental
	// cmd.Wait call; the tracer already reaps the child via its own
	// wait4 loop, never through *exec.Cmd.
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Release()
	}
}
