// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genre/internal/audio"
	"genre/internal/capture"
	"genre/internal/history"
	"genre/internal/render"
	"genre/internal/server"

	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	open := func() *history.Log {
		if a.history != nil {
			return a.history
		}
		// Listing and clearing work even when recording is disabled.
		return history.Open(a.cfg.History.Path)
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the prediction history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := open().List()
			if err != nil {
				return err
			}
			return render.History(a.out, entries)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show every recorded prediction",
		Args:  cobra.NoArgs,
		RunE:  cmd.RunE,
	}, &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded prediction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h := open()
			if err := h.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Cleared %s\n", h.Path())
			return nil
		},
	})
	return cmd
}

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return capture.ListDevices(a.out)
		},
	}
}

func newListenCmd(a *app) *cobra.Command {
	var (
		seconds    float64
		device     int
		channels   int
		lowLatency bool
		save       string
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Record from an input device and classify the clip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			ex, err := a.extractor()
			if err != nil {
				return err
			}

			cc := a.cfg.Capture
			if cmd.Flags().Changed("seconds") {
				cc.Duration = time.Duration(seconds * float64(time.Second))
			}
			if cmd.Flags().Changed("device") {
				cc.Device = device
			}
			if cmd.Flags().Changed("channels") {
				cc.Channels = channels
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger.Infof("Recording %v from device %d", cc.Duration, cc.Device)
			w, err := capture.Record(ctx, capture.Config{
				Device:     cc.Device,
				Duration:   cc.Duration,
				Channels:   cc.Channels,
				SampleRate: a.cfg.Pipeline.SampleRate,
				LowLatency: lowLatency,
			})
			if err != nil {
				return err
			}
			if save != "" {
				if err := audio.WriteWAV(save, w); err != nil {
					return err
				}
				logger.Infof("Recording saved to %s", save)
			}

			source := save
			if source == "" {
				source = "capture " + time.Now().Format(time.DateTime)
			}
			v, err := ex.Extract(w)
			if err != nil {
				return err
			}
			r, err := p.ClassifyVector(source, v)
			if err != nil {
				return err
			}
			a.record(source, r.Label)
			return render.Probabilities(a.out, source, r.Probabilities)
		},
	}
	cmd.Flags().Float64Var(&seconds, "seconds", 0, "Clip length in seconds (default from configuration)")
	cmd.Flags().IntVarP(&device, "device", "d", capture.DefaultDevice, "Input device ID; see 'devices'")
	cmd.Flags().IntVarP(&channels, "channels", "c", 1, "Channels to record before downmixing")
	cmd.Flags().BoolVarP(&lowLatency, "low-latency", "l", false, "Use the device's low input latency")
	cmd.Flags().StringVarP(&save, "save", "o", "", "Also write the clip to this WAV file")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP classification service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			sc := a.cfg.Server
			if cmd.Flags().Changed("addr") {
				sc.Addr = addr
			}

			var opts []server.Option
			if a.history != nil {
				opts = append(opts, server.WithHistory(a.history))
			}
			srv := server.New(p, sc, opts...)
			defer srv.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from configuration)")
	return cmd
}
