// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the parameters of one projection run. It can be
// loaded from a TOML file (see loadConfig) and overridden by
// command line flags.
type Config struct {
	PeakTablePath   string `toml:"peak_table_path"`
	SignalTablePath string `toml:"signal_table_path"`
	OutputPath      string `toml:"output_path"`
	BinCount        int    `toml:"bin_count"`
	Method          string `toml:"method"`
	SampleSize      int    `toml:"sample_size"`
	EmitPlot        bool   `toml:"emit_plot"`

	PlotPath    string  `toml:"plot_path"`
	MatrixPath  string  `toml:"matrix_path"`
	RegionsPath string  `toml:"regions_path"`
	Seed        uint64  `toml:"seed"`
	Strict      bool    `toml:"strict"`
	Dedup       bool    `toml:"dedup"`
	NullFill    string  `toml:"null_fill"`
	Perplexity  float64 `toml:"perplexity"`
	Iterations  int     `toml:"iterations"`
}

const (
	methodPCA  = "PCA"
	methodTSNE = "TSNE"
)

func DefaultConfig() Config {
	return Config{
		BinCount:   100,
		Method:     methodPCA,
		Dedup:      true,
		Perplexity: 30,
		Iterations: 1000,
	}
}

// Flags binds command line flags to the fields of cfg, so flag
// defaults are the current field values.
func (cfg *Config) Flags(flags *flag.FlagSet) {
	flags.StringVar(&cfg.PeakTablePath, "i", cfg.PeakTablePath, "peak table `file` (Zegami TSV)")
	flags.StringVar(&cfg.SignalTablePath, "b", cfg.SignalTablePath, "bigWig signal `file` (computeMatrix TSV)")
	flags.StringVar(&cfg.OutputPath, "o", cfg.OutputPath, "output `file` (peak table with x and y columns appended)")
	flags.IntVar(&cfg.BinCount, "n", cfg.BinCount, "number of signal bins per peak")
	flags.StringVar(&cfg.Method, "a", cfg.Method, "analysis `method`: PCA or TSNE")
	flags.IntVar(&cfg.SampleSize, "s", cfg.SampleSize, "project a random sample of `N` peaks instead of all (0 = all)")
	flags.BoolVar(&cfg.EmitPlot, "p", cfg.EmitPlot, "also write a scatter plot of the coordinates")
	flags.StringVar(&cfg.PlotPath, "plot-output", cfg.PlotPath, "scatter plot `file` (default: output file + .png)")
	flags.StringVar(&cfg.MatrixPath, "output-matrix", cfg.MatrixPath, "also write the peaks x bins matrix to numpy `file`")
	flags.StringVar(&cfg.RegionsPath, "regions", cfg.RegionsPath, "only use peaks overlapping regions in bed `file`")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed for sampling and TSNE")
	flags.BoolVar(&cfg.Strict, "strict", cfg.Strict, "fail instead of warning if the joined table is not in peak table order")
	flags.BoolVar(&cfg.Dedup, "dedup", cfg.Dedup, "drop duplicate feature_id rows after the join")
	flags.StringVar(&cfg.NullFill, "null-fill", cfg.NullFill, "coordinate `value` for peaks with no signal data")
	flags.Float64Var(&cfg.Perplexity, "perplexity", cfg.Perplexity, "TSNE perplexity")
	flags.IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "TSNE iterations")
}

// Validate normalizes the method name and checks that required
// fields are set.
func (cfg *Config) Validate() error {
	cfg.Method = strings.ToUpper(cfg.Method)
	switch {
	case cfg.PeakTablePath == "":
		return errors.New("peak table path (-i) not specified")
	case cfg.SignalTablePath == "":
		return errors.New("signal table path (-b) not specified")
	case cfg.OutputPath == "":
		return errors.New("output path (-o) not specified")
	case cfg.BinCount < 1:
		return fmt.Errorf("invalid bin count %d", cfg.BinCount)
	case cfg.Method != methodPCA && cfg.Method != methodTSNE:
		return fmt.Errorf("invalid analysis method %q (must be PCA or TSNE)", cfg.Method)
	case cfg.SampleSize < 0:
		return fmt.Errorf("invalid sample size %d", cfg.SampleSize)
	case cfg.Method == methodTSNE && (cfg.Perplexity <= 0 || cfg.Iterations < 1):
		return fmt.Errorf("invalid TSNE parameters: perplexity %v, iterations %d", cfg.Perplexity, cfg.Iterations)
	}
	if cfg.EmitPlot && cfg.PlotPath == "" {
		cfg.PlotPath = strings.TrimSuffix(cfg.OutputPath, ".gz") + ".png"
	}
	return nil
}

// loadConfig decodes the TOML file at path into cfg. Fields missing
// from the file keep their current values.
func loadConfig(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	err = toml.NewDecoder(f).DisallowUnknownFields().Decode(cfg)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
