// SPDX-License-Identifier: MIT
//
// Package batch runs extraction and classification over many files with a
// bounded worker pool. A failing file is reported in its Result; only
// cancellation stops a batch.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"genre/internal/audio"
	"genre/internal/classifier"
	"genre/internal/features"
	applog "genre/internal/log"
	"genre/internal/transport"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var logger = applog.For("Batch")

// Extractor produces feature vectors from encoded audio.
type Extractor interface {
	ExtractFile(path string) (features.Vector, error)
	ExtractBytes(data []byte, format audio.Format) (features.Vector, error)
}

// Pipeline pairs an extractor with a classifier. Both are shared by every
// worker.
type Pipeline struct {
	Extractor Extractor
	Adapter   *classifier.Adapter
}

// ClassifyFile extracts and classifies one file. Failures are recorded in
// the Result's Error field.
func (p Pipeline) ClassifyFile(path string, withFeatures bool) transport.Result {
	r, _ := p.classify(path, withFeatures, func() (features.Vector, error) {
		return p.Extractor.ExtractFile(path)
	})
	return r
}

// ClassifyBytes classifies an in-memory upload named source. The error is
// also recorded in the Result; it is returned so callers can inspect its
// type.
func (p Pipeline) ClassifyBytes(source string, data []byte, format audio.Format, withFeatures bool) (transport.Result, error) {
	return p.classify(source, withFeatures, func() (features.Vector, error) {
		return p.Extractor.ExtractBytes(data, format)
	})
}

// ClassifyVector classifies a vector that was extracted elsewhere.
func (p Pipeline) ClassifyVector(source string, v features.Vector) (transport.Result, error) {
	return p.classify(source, false, func() (features.Vector, error) { return v, nil })
}

func (p Pipeline) classify(source string, withFeatures bool, extract func() (features.Vector, error)) (transport.Result, error) {
	start := time.Now()
	r := transport.Result{ID: uuid.NewString(), Source: source, Time: start}
	fail := func(err error) (transport.Result, error) {
		r.Error = err.Error()
		r.Elapsed = time.Since(start)
		return r, err
	}

	v, err := extract()
	if err != nil {
		return fail(err)
	}
	dist, err := p.Adapter.Probabilities(v)
	if err != nil {
		return fail(err)
	}
	r.Probabilities = dist
	r.Label = dist.Top().Label
	if withFeatures {
		r.Features = &v
	}
	r.Elapsed = time.Since(start)
	return r, nil
}

// Options tunes a batch run.
type Options struct {
	Workers      int                 // Concurrent files; 0 uses one per CPU.
	Transport    transport.Transport // Receives each Result as it completes; may be nil.
	WithFeatures bool                // Attach the feature vector to each Result.
}

// Run classifies files and returns one Result per file in input order. When
// ctx is cancelled no further files are started; the unstarted files carry
// the context error and Run returns it.
func Run(ctx context.Context, p Pipeline, files []string, opts Options) ([]transport.Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]transport.Result, len(files))
	started := make([]bool, len(files))
	logger.Infof("Classifying %d files with %d workers", len(files), workers)

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			if ctx.Err() != nil {
				out[i] = cancelled(path, ctx.Err())
				return nil
			}
			r := p.ClassifyFile(path, opts.WithFeatures)
			out[i] = r
			if opts.Transport != nil {
				if err := opts.Transport.Send(r); err != nil {
					logger.Warnf("Failed to publish result for %s: %v", path, err)
				}
			}
			return nil
		})
	}
	g.Wait()

	err := ctx.Err()
	for i, path := range files {
		if !started[i] {
			out[i] = cancelled(path, err)
		}
	}
	if err != nil {
		return out, fmt.Errorf("batch interrupted: %w", err)
	}
	return out, nil
}

func cancelled(path string, err error) transport.Result {
	return transport.Result{Source: path, Error: err.Error(), Time: time.Now()}
}

// Expand replaces every directory in paths with the audio files beneath it,
// sorted. Plain files are kept as given even without a known extension.
func Expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &audio.IOError{Path: p, Err: err}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && audio.FormatFromPath(path) != "" {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}
		slices.Sort(found)
		files = append(files, found...)
	}
	return files, nil
}

// Summary counts successes per label and failures.
type Summary struct {
	Total  int
	Failed int
	Labels map[string]int
}

// Summarize tallies results.
func Summarize(results []transport.Result) Summary {
	s := Summary{Total: len(results), Labels: map[string]int{}}
	for _, r := range results {
		if r.Error != "" {
			s.Failed++
			continue
		}
		s.Labels[r.Label]++
	}
	return s
}
