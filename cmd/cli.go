// SPDX-License-Identifier: MIT
//
// Package cmd is the genre command tree.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"genre/internal/batch"
	"genre/internal/cache"
	"genre/internal/classifier"
	"genre/internal/config"
	"genre/internal/features"
	"genre/internal/history"
	applog "genre/internal/log"
	"genre/pkg/build"

	"github.com/spf13/cobra"
)

var logger = applog.For("CLI")

// options are the global flags. Set flags override the configuration file.
type options struct {
	configPath  string
	logLevel    string
	model       string
	labels      string
	modelFormat string
	historyPath string
	noHistory   bool
	cacheDir    string
	workers     int
	sampleRate  int
}

// app is the state shared by subcommands. The classifier is loaded on first
// use so commands such as history and devices work without a model.
type app struct {
	opts    options
	cfg     *config.Config
	out     io.Writer
	cache   *cache.FeatureCache
	history *history.Log
	pipe    *batch.Pipeline
	ex      *features.Extractor
}

// Execute runs the command line in args, writing results to stdout.
func Execute(args []string) error {
	return run(args, os.Stdout)
}

func run(args []string, out io.Writer) error {
	a := &app{out: out}
	root := newRootCmd(a)
	root.SetArgs(args)
	defer a.close()
	return root.Execute()
}

func newRootCmd(a *app) *cobra.Command {
	buildInfo := build.GetBuildFlags()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd)
		},
	}
	rootCmd.SetOut(a.out)

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "Configuration file (default genre.yaml or config.yaml if present)")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVarP(&a.opts.model, "model", "m", "", "Trained model file")
	flags.StringVar(&a.opts.labels, "labels", "", "Label list file (YAML, JSON or text)")
	flags.StringVar(&a.opts.modelFormat, "model-format", "", "Model format: auto, xgboost or forest")
	flags.StringVar(&a.opts.historyPath, "history", "", "Prediction history CSV")
	flags.BoolVar(&a.opts.noHistory, "no-history", false, "Do not record predictions")
	flags.StringVar(&a.opts.cacheDir, "cache-dir", "", "Enable the feature cache in this directory")
	flags.IntVarP(&a.opts.workers, "workers", "w", 0, "Concurrent files for batch work (0 = one per CPU)")
	flags.IntVarP(&a.opts.sampleRate, "sample-rate", "s", 0, "Analysis sample rate in Hz; must match the model's training rate")

	rootCmd.AddCommand(
		newClassifyCmd(a),
		newProbsCmd(a),
		newExtractCmd(a),
		newBatchCmd(a),
		newEvalCmd(a),
		newHistoryCmd(a),
		newInfoCmd(a),
		newDevicesCmd(a),
		newListenCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}

// configure loads the configuration file and overlays the set flags.
func (a *app) configure(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.opts.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = a.opts.logLevel
	}
	if flags.Changed("model") {
		cfg.Classifier.ModelPath = a.opts.model
	}
	if flags.Changed("labels") {
		cfg.Classifier.LabelsPath = a.opts.labels
	}
	if flags.Changed("model-format") {
		cfg.Classifier.Format = a.opts.modelFormat
	}
	if flags.Changed("history") {
		cfg.History.Path = a.opts.historyPath
		cfg.History.Enabled = true
	}
	if a.opts.noHistory {
		cfg.History.Enabled = false
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = a.opts.cacheDir
		cfg.Cache.Enabled = a.opts.cacheDir != ""
	}
	if flags.Changed("workers") {
		cfg.Batch.Workers = a.opts.workers
	}
	if flags.Changed("sample-rate") {
		cfg.Pipeline.SampleRate = a.opts.sampleRate
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	applog.SetLevel(level)
	a.cfg = cfg
	if cfg.History.Enabled {
		a.history = history.Open(cfg.History.Path)
	}
	return nil
}

// extractor builds the feature extractor, attaching the cache when enabled.
func (a *app) extractor() (*features.Extractor, error) {
	if a.ex != nil {
		return a.ex, nil
	}
	var opts []features.Option
	if a.cfg.Cache.Enabled {
		c, err := cache.Open(cache.Options{Dir: a.cfg.Cache.Dir})
		if err != nil {
			return nil, err
		}
		a.cache = c
		opts = append(opts, features.WithCache(c))
	}
	ex, err := features.NewExtractor(a.cfg.Pipeline, opts...)
	if err != nil {
		return nil, err
	}
	a.ex = ex
	return ex, nil
}

// adapter loads the model and labels named by the configuration.
func (a *app) adapter() (*classifier.Adapter, error) {
	if a.pipe != nil {
		return a.pipe.Adapter, nil
	}
	cc := a.cfg.Classifier
	model, err := classifier.LoadModel(cc.ModelPath, cc.Format)
	if err != nil {
		return nil, err
	}
	labels, err := classifier.LoadLabels(cc.LabelsPath)
	if err != nil {
		return nil, err
	}
	return classifier.NewAdapter(model, labels)
}

// pipeline returns the extractor and classifier together.
func (a *app) pipeline() (batch.Pipeline, error) {
	if a.pipe != nil {
		return *a.pipe, nil
	}
	adapter, err := a.adapter()
	if err != nil {
		return batch.Pipeline{}, err
	}
	ex, err := a.extractor()
	if err != nil {
		return batch.Pipeline{}, err
	}
	a.pipe = &batch.Pipeline{Extractor: ex, Adapter: adapter}
	return *a.pipe, nil
}

// record appends a prediction to the history when it is enabled.
func (a *app) record(path, label string) {
	if a.history == nil {
		return
	}
	if _, err := a.history.Append(path, label); err != nil {
		logger.Warnf("Failed to record history: %v", err)
	}
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Warnf("Failed to close cache: %v", err)
		}
	}
}

// failures reports how many of total files failed, or nil.
func failures(failed, total int) error {
	if failed == 0 {
		return nil
	}
	if total == 1 {
		return errors.New("classification failed")
	}
	return fmt.Errorf("%d of %d files failed", failed, total)
}
