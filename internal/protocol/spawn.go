package protocol

import (
	"io"
	"os"
	"os/exec"

	"github.com/juju/errors"
)

// Role selects which side of the protocol a spawned process runs as.
type Role string

const (
	RoleLocal  Role = "local"
	RoleRemote Role = "remote"
	RoleAsync  Role = "async"
)

// SpawnLocal forks a local worker: the same binary re-invoked with
// --process-role=<role> and the given options, connected to the
// parent over its stdin/stdout pipes. This is the explicit spawn API
// spec's process fan-out resolution calls for, replacing an implicit
// global fork/exec call.
func SpawnLocal(role Role, options []string) (stdin io.WriteCloser, stdout io.ReadCloser, proc *os.Process, err error) {
	self, err := os.Executable()
	if err != nil {
		return nil, nil, nil, errors.Annotate(err, "resolve own executable path")
	}
	args := append([]string{"--process-role=" + string(role)}, options...)
	cmd := exec.Command(self, args...)
	cmd.Stderr = os.Stderr

	stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, errors.Annotate(err, "open worker stdin pipe")
	}
	stdout, err = cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, errors.Annotate(err, "open worker stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, errors.Annotatef(err, "spawn local worker (role %s)", role)
	}
	return stdin, stdout, cmd.Process, nil
}
