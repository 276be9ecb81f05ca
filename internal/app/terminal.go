package app

import (
	"context"
	"io"
	"os"

	"github.com/opsdeck/console/internal/terminal"
)

// terminalCmd hands the operator's terminal to a remote shell. It satisfies
// tea.ExecCommand, so the program releases the screen while it runs and
// takes it back when the shell ends or the operator detaches.
type terminalCmd struct {
	ctx    context.Context
	opts   terminal.Options
	stdin  io.Reader
	stdout io.Writer
}

func (c *terminalCmd) Run() error {
	if c.stdin == nil {
		c.stdin = os.Stdin
	}
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	return terminal.Attach(c.ctx, c.opts, c.stdin, c.stdout)
}

func (c *terminalCmd) SetStdin(r io.Reader)  { c.stdin = r }
func (c *terminalCmd) SetStdout(w io.Writer) { c.stdout = w }
func (c *terminalCmd) SetStderr(io.Writer)   {}
