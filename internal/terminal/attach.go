package terminal

import (
	"context"
	"io"
	"os"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// Attach runs a session on the operator's terminal. When stdin is a tty it
// is put in raw mode for the duration, so keys reach the line discipline one
// by one. The input reader is cancelled on return, which leaves stdin free
// for whoever owns it next.
func Attach(ctx context.Context, opts Options, stdin io.Reader, stdout io.Writer) error {
	restore, err := makeRaw(stdin)
	if err != nil {
		return err
	}
	defer restore()

	in, err := cancelreader.NewReader(stdin)
	if err != nil {
		return err
	}
	defer in.Close()
	defer in.Cancel()

	opts.Display = stdout
	s := NewSession(opts)
	return s.Run(ctx, in)
}

func makeRaw(r io.Reader) (func(), error) {
	f, ok := r.(*os.File)
	if !ok {
		return func() {}, nil
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, oldState) }, nil
}
