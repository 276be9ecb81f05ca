package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsdeck/console/internal/api"
	"github.com/opsdeck/console/internal/channel"
	"github.com/opsdeck/console/internal/notify"
	"github.com/opsdeck/console/internal/screen"
)

type streamFlags struct {
	display  int
	quality  float64
	keyframe int
}

func (f *streamFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.display, "display", -1, "display index (default: the primary display)")
	cmd.Flags().Float64Var(&f.quality, "quality", 0, "stream quality between 0.1 and 1 (default from config)")
	cmd.Flags().IntVar(&f.keyframe, "keyframe-interval", 0, "frames between keyframes, 0 leaves it to the agent")
}

// options fills unset flags from config and the negotiated displays.
func (f *streamFlags) options(root *rootOptions, displays []api.Display, codec screen.Codec) screen.Options {
	o := screen.Options{
		Display:          f.display,
		Quality:          f.quality,
		Codec:            codec,
		KeyframeInterval: f.keyframe,
	}
	if o.Display < 0 {
		o.Display = api.PrimaryDisplay(displays)
	}
	if o.Quality == 0 {
		o.Quality = root.cfg.Screen.Quality
	}
	if o.KeyframeInterval == 0 {
		o.KeyframeInterval = root.cfg.Screen.KeyframeInterval
	}
	return o
}

// closedNotifier reports the first transition to closed.
func closedNotifier() (func(channel.State, error), <-chan error) {
	ended := make(chan error, 1)
	return func(state channel.State, err error) {
		if state != channel.StateClosed {
			return
		}
		if err == nil {
			err = errors.New("stream closed")
		}
		select {
		case ended <- err:
		default:
		}
	}, ended
}

func newScreenCmd(root *rootOptions) *cobra.Command {
	flags := &streamFlags{}
	cmd := &cobra.Command{
		Use:   "screen <addr>",
		Short: "Play a host's screen in the configured video player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			addr := args[0]
			client, err := root.client()
			if err != nil {
				return err
			}
			dialer := root.dialer(client)
			onChange, ended := closedNotifier()
			scr := screen.NewSession(screen.Config{
				Host:      addr,
				Displays:  client,
				Endpoints: client.Endpoints(),
				Dialer:    dialer,
				Decoder:   root.decoder(dialer, os.Stdout, os.Stderr),
				OnChange:  onChange,
				Logger:    root.logger,
			})
			defer scr.Dispose()

			displays, err := scr.Negotiate(ctx)
			if err != nil {
				return err
			}
			opts := flags.options(root, displays, screen.CodecMPEG1)
			if err := scr.Connect(ctx, opts); err != nil {
				return err
			}

			// A resized display invalidates the player's geometry.
			bus := root.bus(client, dialer)
			bus.Subscribe(func(ev notify.Event) {
				if ev.Kind != notify.Updated || ev.HostAddress != addr {
					return
				}
				current, err := client.ListDisplays(ctx, addr)
				if err != nil {
					root.logger.Warn("refresh displays", "error", err)
					return
				}
				_ = scr.CheckGeometry(current)
			})
			bus.Start()
			defer bus.Close()

			select {
			case <-ctx.Done():
				return nil
			case err := <-ended:
				return err
			}
		},
	}
	flags.register(cmd)
	return cmd
}

// firstFrame is an image surface that signals its first painted frame.
type firstFrame struct {
	screen.ImageSurface
	once  sync.Once
	ready chan struct{}
}

func (f *firstFrame) Paint(fr screen.Frame) {
	f.ImageSurface.Paint(fr)
	f.once.Do(func() { close(f.ready) })
}

func newSnapshotCmd(root *rootOptions) *cobra.Command {
	flags := &streamFlags{}
	var (
		output  string
		format  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "snapshot <addr>",
		Short: "Save one frame of a host's screen as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			client, err := root.client()
			if err != nil {
				return err
			}
			if format == "" {
				format = root.cfg.Screen.PixelFormat
			}
			pf, err := screen.ParsePixelFormat(format)
			if err != nil {
				return err
			}

			frame := &firstFrame{ready: make(chan struct{})}
			onChange, ended := closedNotifier()
			scr := screen.NewSession(screen.Config{
				Host:      args[0],
				Displays:  client,
				Endpoints: client.Endpoints(),
				Dialer:    root.dialer(client),
				Surface:   frame,
				OnChange:  onChange,
				Logger:    root.logger,
			})
			defer scr.Dispose()

			displays, err := scr.Negotiate(ctx)
			if err != nil {
				return err
			}
			opts := flags.options(root, displays, screen.CodecRaw)
			opts.Format = pf
			if err := scr.Connect(ctx, opts); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("no frame received: %w", ctx.Err())
			case err := <-ended:
				return fmt.Errorf("no frame received: %w", err)
			case <-frame.ready:
			}
			scr.Disconnect()

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := frame.WritePNG(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			img := frame.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d)\n", output, img.Rect.Dx(), img.Rect.Dy())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "screen.png", "PNG file to write")
	cmd.Flags().StringVar(&format, "format", "", "raw pixel format: raw, abgr or argb (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "give up when no frame arrives in time")
	return cmd
}
