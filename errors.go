package sanlvm

import (
	"fmt"
	"strings"
)

// VolumeGroupNotFoundError indicates the named volume group does not
// exist on the managed host.
type VolumeGroupNotFoundError struct {
	// Name is the volume group that could not be found.
	Name string
}

func (e *VolumeGroupNotFoundError) Error() string {
	return fmt.Sprintf("unable to find volume group %q", e.Name)
}

// LogicalVolumeNotFoundError indicates a logical volume lookup found no
// volume with the requested name in the group.
type LogicalVolumeNotFoundError struct {
	Group string
	Name  string
}

func (e *LogicalVolumeNotFoundError) Error() string {
	return fmt.Sprintf("unable to find logical volume %q in volume group %q",
		e.Name, e.Group)
}

// ExecutionError indicates a command was delivered and ran but exited
// non-zero. It is deterministic and never retried.
type ExecutionError struct {
	// Argv is the command that was run.
	Argv []string

	// ExitCode is the command's exit status.
	ExitCode int

	// Stderr is the captured standard error output.
	Stderr string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("command failed [%d]: %s\nstderr: %s",
		e.ExitCode, strings.Join(e.Argv, " "), e.Stderr)
}

// ConnectionError indicates a remote command could not be delivered
// after exhausting the retry budget. It is fatal to the operation.
type ConnectionError struct {
	// Command is the command line that never completed.
	Command string

	// Attempts is how many delivery attempts were made.
	Attempts int

	// Err is the transport failure from the final attempt.
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("command failed after %d attempts: %q: %v",
		e.Attempts, e.Command, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ParseError indicates tool output did not match the schema expected
// for the command that produced it.
type ParseError struct {
	// Schema names the command schema that was being applied.
	Schema string

	// Line is the offending output line.
	Line string

	// Expected is the field count the schema requires.
	Expected int

	// Found is the field count the line actually split into.
	Found int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s output line %q has %d fields, expected %d",
		e.Schema, e.Line, e.Found, e.Expected)
}

// ValidationError indicates the execution configuration is unusable,
// for example remote execution selected without any credentials.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.Reason
}
