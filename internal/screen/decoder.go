package screen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/opsdeck/console/internal/channel"
)

// Decoder is an external compressed-video player. It pulls the stream from
// url by itself and paints at width x height. done is called once if the
// decoder stops for any reason other than Stop.
type Decoder interface {
	Start(ctx context.Context, url string, width, height int, done func(error)) error
	Stop() error
}

// DefaultPlayerArgs plays an MPEG-TS stream from stdin with ffplay.
func DefaultPlayerArgs() []string {
	return []string{
		"-loglevel", "error",
		"-autoexit",
		"-window_title", "opsdeck",
		"-f", "mpegts",
		"-x", "{width}", "-y", "{height}",
		"-i", "-",
	}
}

// ExecDecoder runs a player process and pipes the stream's binary messages
// into its standard input. "{width}" and "{height}" in Args are replaced
// with the surface size.
type ExecDecoder struct {
	Command string
	Args    []string
	Dialer  *channel.Dialer
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *slog.Logger

	mu      sync.Mutex
	gen     int
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	ch      *channel.Channel
	done    func(error)
	running bool
}

func (d *ExecDecoder) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Start launches the player and opens the stream.
func (d *ExecDecoder) Start(ctx context.Context, url string, width, height int, done func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrSessionActive
	}

	size := strings.NewReplacer("{width}", strconv.Itoa(width), "{height}", strconv.Itoa(height))
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = size.Replace(a)
	}
	cmd := exec.Command(d.Command, args...)
	cmd.Stdout = d.Stdout
	cmd.Stderr = d.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("decoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", d.Command, err)
	}

	d.gen++
	gen := d.gen
	d.cmd = cmd
	d.stdin = stdin
	d.done = done
	d.running = true

	dialer := d.Dialer
	if dialer == nil {
		dialer = &channel.Dialer{}
	}
	d.ch = dialer.Open(ctx, url, channel.HandlerFuncs{
		Message: func(m channel.Message) {
			if m.Kind != channel.Binary {
				return
			}
			if _, err := stdin.Write(m.Data); err != nil {
				d.finish(gen, fmt.Errorf("decoder input: %w", err))
			}
		},
		Close: func(err error) { d.finish(gen, err) },
	})
	go func() {
		err := cmd.Wait()
		if err != nil {
			err = fmt.Errorf("%s exited: %w", d.Command, err)
		} else {
			err = fmt.Errorf("%s exited", d.Command)
		}
		d.finish(gen, err)
	}()

	d.logger().Info("decoder started", "command", d.Command, "width", width, "height", height)
	return nil
}

// Stop ends the stream and the player. done is not called.
func (d *ExecDecoder) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	d.teardownLocked()
	return nil
}

func (d *ExecDecoder) finish(gen int, err error) {
	d.mu.Lock()
	if !d.running || d.gen != gen {
		d.mu.Unlock()
		return
	}
	done := d.done
	d.teardownLocked()
	d.mu.Unlock()

	if errors.Is(err, channel.ErrClosed) {
		err = nil
	}
	d.logger().Info("decoder stopped", "error", err)
	if done != nil {
		done(err)
	}
}

func (d *ExecDecoder) teardownLocked() {
	d.running = false
	d.done = nil
	d.ch.Close()
	d.stdin.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
}
