// Package execx provides a mockable abstraction over subprocess execution.
package execx

import (
	"bytes"
	"os/exec"
)

// Executor defines an interface for executing a single external command.
// This abstraction enables unit testing without invoking real tools.
type Executor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)

	// SetStdin sets the stdin for the command.
	SetStdin(stdin []byte)

	// SetDir sets the working directory for the command.
	SetDir(dir string)
}

// Builder defines an interface for constructing Executors.
// Production code uses RealBuilder; tests inject a MockBuilder to record the
// exact argv handed to OpenOCD, git, or make.
type Builder interface {
	// Command creates an Executor for the named program and arguments.
	Command(name string, args ...string) Executor
}

// LookPath reports whether the named program resolves on PATH (or is an
// absolute path to an existing executable). Implemented on Builder so tests
// can pretend a tool is installed.
type LookPather interface {
	LookPath(name string) (string, error)
}

// RealExecutor wraps exec.Cmd to implement Executor.
type RealExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *RealExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// SetStdin sets stdin for the command.
func (r *RealExecutor) SetStdin(stdin []byte) {
	r.cmd.Stdin = bytes.NewReader(stdin)
}

// SetDir sets the working directory for the command.
func (r *RealExecutor) SetDir(dir string) {
	r.cmd.Dir = dir
}

// RealBuilder implements Builder using exec.Command.
type RealBuilder struct{}

// NewRealBuilder creates a new RealBuilder.
func NewRealBuilder() *RealBuilder {
	return &RealBuilder{}
}

// Command creates an Executor for the given program and arguments.
func (b *RealBuilder) Command(name string, args ...string) Executor {
	return &RealExecutor{cmd: exec.Command(name, args...)}
}

// LookPath resolves the program through exec.LookPath.
func (b *RealBuilder) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// ExitCode extracts the subprocess exit code from an error returned by Run.
// Returns -1 for errors that did not come from a process exit (e.g. the
// program was not found), and 0 for a nil error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

// MockExecutor implements Executor for testing.
type MockExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// Stdin holds the stdin data that was set.
	Stdin []byte
	// Dir holds the working directory that was set.
	Dir string
	// RunCalled indicates whether Run was called.
	RunCalled bool
}

// Run returns the configured output and error.
func (m *MockExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	return m.Output, m.Err
}

// SetStdin records the stdin data.
func (m *MockExecutor) SetStdin(stdin []byte) {
	m.Stdin = stdin
}

// SetDir records the working directory.
func (m *MockExecutor) SetDir(dir string) {
	m.Dir = dir
}

// MockBuilder implements Builder for testing.
type MockBuilder struct {
	// Commands records all commands that were built.
	Commands []MockBuiltCommand
	// NextExecutor is the next executor to return. If nil, creates a default MockExecutor.
	NextExecutor *MockExecutor
	// ExecutorFactory allows creating executors dynamically based on command.
	ExecutorFactory func(name string, args []string) *MockExecutor
	// MissingPrograms lists names LookPath should report as not installed.
	MissingPrograms []string

	executors []*MockExecutor
}

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Name string
	Args []string
}

// NewMockBuilder creates a new MockBuilder.
func NewMockBuilder() *MockBuilder {
	return &MockBuilder{}
}

// Command creates a MockExecutor and records the command details.
func (b *MockBuilder) Command(name string, args ...string) Executor {
	b.Commands = append(b.Commands, MockBuiltCommand{Name: name, Args: args})
	e := b.getExecutor(name, args)
	b.executors = append(b.executors, e)
	return e
}

// LookPath reports the program as installed unless listed in MissingPrograms.
func (b *MockBuilder) LookPath(name string) (string, error) {
	for _, missing := range b.MissingPrograms {
		if name == missing {
			return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
		}
	}
	return "/usr/bin/" + name, nil
}

func (b *MockBuilder) getExecutor(name string, args []string) *MockExecutor {
	if b.ExecutorFactory != nil {
		return b.ExecutorFactory(name, args)
	}
	if b.NextExecutor != nil {
		executor := b.NextExecutor
		b.NextExecutor = nil
		return executor
	}
	return &MockExecutor{}
}

// SetNextExecutor sets the executor to return for the next Command call.
func (b *MockBuilder) SetNextExecutor(executor *MockExecutor) {
	b.NextExecutor = executor
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockBuilder) LastCommand() *MockBuiltCommand {
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}

// LastExecutor returns the most recently returned executor, or nil if none.
func (b *MockBuilder) LastExecutor() *MockExecutor {
	if len(b.executors) == 0 {
		return nil
	}
	return b.executors[len(b.executors)-1]
}

// Reset clears all recorded commands.
func (b *MockBuilder) Reset() {
	b.Commands = nil
	b.NextExecutor = nil
	b.executors = nil
}
