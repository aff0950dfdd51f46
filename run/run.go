// Package run executes storage tool commands either as a local
// privileged process or over a pooled SSH connection to a remote
// controller. Callers see the same Runner contract either way; local
// versus remote is decided once, from configuration.
package run

import (
	"bytes"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"machinerun.io/sanlvm"
	"machinerun.io/sanlvm/sshpool"
)

const (
	// DefaultRootHelper elevates privileged local commands.
	DefaultRootHelper = "sudo"

	// DefaultAttempts is the remote delivery retry budget.
	DefaultAttempts = 3

	// rc returned when a command could not be started at all.
	noExitRC = 127
)

// Runner executes one command and captures both output streams. A
// non-zero exit fails with *sanlvm.ExecutionError; remote delivery
// failure fails with *sanlvm.ConnectionError.
type Runner interface {
	Run(argv []string, privileged bool) (stdout string, stderr string, err error)
}

// Config selects and parameterizes the execution target.
type Config struct {
	// Local executes commands on this host instead of over SSH; set it
	// when the service runs on the storage device itself.
	Local bool `yaml:"local"`

	// RootHelper is the privilege escalation helper for privileged
	// commands, defaulting to sudo.
	RootHelper string `yaml:"root_helper"`

	// Attempts is the per-command remote retry budget.
	Attempts int `yaml:"attempts"`

	// SSH configures the remote endpoint; required unless Local.
	SSH sshpool.Config `yaml:"ssh"`
}

// New builds a Runner from configuration. Remote configuration is
// validated here so a missing credential fails at startup, not on the
// first command.
func New(cfg Config) (Runner, error) {
	if cfg.RootHelper == "" {
		cfg.RootHelper = DefaultRootHelper
	}

	if cfg.Local {
		return &Local{Helper: cfg.RootHelper}, nil
	}

	pool, err := sshpool.New(cfg.SSH)
	if err != nil {
		return nil, err
	}

	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = DefaultAttempts
	}

	return &Remote{Pool: pool, Helper: cfg.RootHelper, Attempts: attempts}, nil
}

// Local runs commands as child processes on this host.
type Local struct {
	// Helper is prepended to privileged commands when not already root.
	Helper string
}

func (l *Local) Run(argv []string, privileged bool) (string, string, error) {
	argv = elevate(argv, privileged, l.Helper, unix.Geteuid())

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			// never started: missing binary, permission, etc.
			return stdout.String(), stderr.String(),
				errors.Wrapf(err, "failed to run %v", argv)
		}
	}

	if rc := commandExitRC(err); rc != 0 {
		return stdout.String(), stderr.String(), &sanlvm.ExecutionError{
			Argv:     argv,
			ExitCode: rc,
			Stderr:   stderr.String(),
		}
	}

	return stdout.String(), stderr.String(), nil
}

// elevate prepends the root helper when the command needs privileges
// the process does not already have.
func elevate(argv []string, privileged bool, helper string, euid int) []string {
	if !privileged || euid == 0 || helper == "" {
		return argv
	}

	return append([]string{helper}, argv...)
}

func commandExitRC(err error) int {
	if err == nil {
		return 0
	}

	if exitError, ok := err.(*exec.ExitError); ok {
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
	}

	return noExitRC
}

// Executor delivers one command line to a remote endpoint with a retry
// budget. *sshpool.Pool implements it.
type Executor interface {
	ExecuteWithRetry(command string, attempts int) (stdout string, stderr string, err error)
}

// Remote delivers commands to the pooled SSH endpoint.
type Remote struct {
	// Pool is the session pool for the endpoint.
	Pool Executor

	// Helper is prepended to privileged commands on the remote side.
	Helper string

	// Attempts is the delivery retry budget per command.
	Attempts int
}

func (r *Remote) Run(argv []string, privileged bool) (string, string, error) {
	if privileged && r.Helper != "" {
		argv = append([]string{r.Helper}, argv...)
	}

	return r.Pool.ExecuteWithRetry(strings.Join(argv, " "), r.Attempts)
}
