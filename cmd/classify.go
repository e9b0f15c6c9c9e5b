// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"genre/internal/audio"
	"genre/internal/batch"
	"genre/internal/classifier"
	"genre/internal/features"
	"genre/internal/render"
	"genre/internal/transport"
	"genre/internal/transport/udp"

	"github.com/spf13/cobra"
)

func newClassifyCmd(a *app) *cobra.Command {
	var probs bool
	cmd := &cobra.Command{
		Use:   "classify FILE...",
		Short: "Predict the genre of audio files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			failed := 0
			for _, path := range args {
				r := p.ClassifyFile(path, false)
				if r.Error != "" {
					failed++
					logger.Errorf("%s", r.Error)
					continue
				}
				a.record(path, r.Label)
				if probs {
					if err := render.Probabilities(a.out, path, r.Probabilities); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(a.out, "%s: %s\n", path, r.Label)
			}
			return failures(failed, len(args))
		},
	}
	cmd.Flags().BoolVarP(&probs, "probs", "p", false, "Show the probability of every genre")
	return cmd
}

func newProbsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probs FILE",
		Short: "Show the genre probability distribution of one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			v, err := p.Extractor.ExtractFile(args[0])
			if err != nil {
				return err
			}
			dist, err := p.Adapter.Probabilities(v)
			if err != nil {
				return err
			}
			a.record(args[0], dist.Top().Label)
			if asJSON {
				return json.NewEncoder(a.out).Encode(dist)
			}
			return render.Probabilities(a.out, args[0], dist)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the distribution as a JSON object")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	var (
		label  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "extract FILE|DIR...",
		Short: "Write feature vectors as CSV in the training layout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := a.extractor()
			if err != nil {
				return err
			}
			files, err := batch.Expand(args)
			if err != nil {
				return err
			}

			w := a.out
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			rw := features.NewRowWriter(w)
			failed := 0
			for _, path := range files {
				v, length, err := ex.ExtractWithLength(path)
				if err != nil {
					failed++
					logger.Errorf("%v", err)
					continue
				}
				row := features.Row{Filename: filepath.Base(path), Length: length, Vector: v, Label: label}
				if err := rw.Write(row); err != nil {
					return err
				}
			}
			if err := rw.Flush(); err != nil {
				return err
			}
			return failures(failed, len(files))
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "Genre label written in the last column")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV file (default stdout)")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		wsAddr  string
		udpAddr string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "batch FILE|DIR...",
		Short: "Classify many files in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			files, err := batch.Expand(args)
			if err != nil {
				return err
			}

			sink := transport.Multi{transport.NewLoggingTransport()}
			if wsAddr != "" {
				ws := transport.NewWebSocketTransport()
				if err := ws.Listen(wsAddr); err != nil {
					ws.Close()
					return err
				}
				sink = append(sink, ws)
			}
			if udpAddr != "" {
				pub, err := udp.NewPublisher(udpAddr)
				if err != nil {
					return err
				}
				sink = append(sink, pub)
			}
			defer sink.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			results, runErr := batch.Run(ctx, p, files, batch.Options{Workers: a.cfg.Batch.Workers, Transport: sink})

			if asJSON {
				enc := json.NewEncoder(a.out)
				for _, r := range results {
					if err := enc.Encode(r); err != nil {
						return err
					}
				}
			} else if err := render.Results(a.out, results); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}
			s := batch.Summarize(results)
			return failures(s.Failed, s.Total)
		},
	}
	cmd.Flags().StringVar(&wsAddr, "ws", "", "Stream results to websocket clients on this address (e.g. :8081)")
	cmd.Flags().StringVar(&udpAddr, "udp", "", "Publish results as msgpack datagrams to this address")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON result per line")
	return cmd
}

func newEvalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eval CSV",
		Short: "Score the model on a labelled feature CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := a.adapter()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := features.ReadRows(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			report, err := classifier.Evaluate(adapter, rows)
			if err != nil {
				return err
			}
			return render.Report(a.out, report)
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE...",
		Short: "Show container properties of audio files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				info, err := audio.Probe(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s: %s, %d Hz, %d ch, %d-bit, %d samples (%.2fs)\n",
					path, info.Format, info.SampleRate, info.Channels, info.BitDepth, info.Samples, info.Duration.Seconds())
			}
			return nil
		},
	}
}
