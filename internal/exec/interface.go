// Package exec launches agent processes in their own process group and
// streams their output line by line.
package exec

// Stream identifies which output a line came from.
type Stream string

const (
	Stdout Stream = "STDOUT"
	Stderr Stream = "STDERR"
)

// LineSink receives each output line without its trailing newline.
// It may be called concurrently for the two streams.
type LineSink func(stream Stream, line string)

// Spec describes one process launch.
type Spec struct {
	// Shell runs Command as "<Shell> -c <Command>". Defaults to "sh".
	Shell   string
	Command string
	// Dir is the working directory.
	Dir string
	// Env is the full environment of the process.
	Env []string
	// Stdin is written to the process's standard input, then closed.
	Stdin string
}

// Handle is a running process.
type Handle interface {
	// PID returns the process id.
	PID() int
	// Done is closed once the process has exited and output is drained.
	Done() <-chan struct{}
	// Wait blocks until Done and returns the exit code (-1 when killed
	// by a signal) and any error other than a non-zero exit.
	Wait() (int, error)
	// Kill terminates the whole process group.
	Kill() error
}

// Launcher starts processes.
type Launcher interface {
	Launch(spec Spec, sink LineSink) (Handle, error)
}
