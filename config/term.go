package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// TerminalIO is where user-facing output goes. Inside a hook, both Stdout
// and Stderr are relayed to the pushing client.
type TerminalIO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var DefaultTermIO = TerminalIO{
	Stdin:  os.Stdin,
	Stdout: os.Stdout,
	Stderr: os.Stderr,
}

// BufferedTermIO returns a TerminalIO that writes into the returned
// buffers.
func BufferedTermIO(stdin io.Reader) (TerminalIO, *bytes.Buffer, *bytes.Buffer) {
	ob := &bytes.Buffer{}
	eb := &bytes.Buffer{}
	return TerminalIO{Stdin: stdin, Stdout: ob, Stderr: eb}, ob, eb
}

func (t *TerminalIO) Printf(msg string, args ...interface{}) {
	fmt.Fprintf(t.Stdout, msg, args...)
}
