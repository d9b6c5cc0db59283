// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/arvados/peakplot/table"
	"github.com/google/uuid"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"gonum.org/v1/gonum/mat"
)

const banner = "=========================="

type projectCmd struct{}

type projectFlags struct {
	cfg         Config
	configFile  string
	pprof       string
	runlocal    bool
	projectUUID string
	priority    int
}

func newProjectFlags(cfg Config) *projectFlags {
	return &projectFlags{cfg: cfg, runlocal: true, priority: 500}
}

func (pf *projectFlags) flagSet(stderr io.Writer) *flag.FlagSet {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pf.cfg.Flags(flags)
	flags.StringVar(&pf.configFile, "config", pf.configFile, "read parameters from TOML `file` (flags given on the command line take precedence)")
	flags.StringVar(&pf.pprof, "pprof", pf.pprof, "serve Go profile data at http://`[addr]:port`")
	flags.BoolVar(&pf.runlocal, "local", pf.runlocal, "run on local host (if false, run in an arvados container)")
	flags.StringVar(&pf.projectUUID, "project", pf.projectUUID, "project `UUID` for output data (container mode)")
	flags.IntVar(&pf.priority, "priority", pf.priority, "container request priority")
	return flags
}

func (cmd *projectCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	pf := newProjectFlags(DefaultConfig())
	flags := pf.flagSet(stderr)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("unexpected arguments: %q", flags.Args())
		return 2
	}
	if pf.configFile != "" {
		// Load the file, then parse the command line again so
		// explicitly given flags override file values.
		cfg := DefaultConfig()
		err = loadConfig(pf.configFile, &cfg)
		if err != nil {
			return 1
		}
		pf = newProjectFlags(cfg)
		err = pf.flagSet(io.Discard).Parse(args)
		if err != nil {
			return 2
		}
	}
	err = pf.cfg.Validate()
	if err != nil {
		return 2
	}

	if pf.pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(pf.pprof, nil))
		}()
	}

	if !pf.runlocal {
		var output string
		output, err = cmd.runContainer(pf)
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output)
		return 0
	}

	err = run(pf.cfg, stdout)
	if err != nil {
		return 1
	}
	return 0
}

// runContainer runs the same projection in an arvados container and
// returns the path of the output table in the output collection.
func (cmd *projectCmd) runContainer(pf *projectFlags) (string, error) {
	cfg := pf.cfg
	if cfg.OutputPath == "-" {
		return "", errors.New("cannot write output to stdout in container mode")
	}
	runner := arvadosContainerRunner{
		Name:        "peakplot project",
		Client:      arvados.NewClientFromEnv(),
		ProjectUUID: pf.projectUUID,
		RAM:         16 << 30,
		VCPUs:       2,
		Priority:    pf.priority,
	}
	err := runner.TranslatePaths(&cfg.PeakTablePath, &cfg.SignalTablePath, &cfg.RegionsPath)
	if err != nil {
		return "", err
	}
	outputBase := filepath.Base(cfg.OutputPath)
	runner.Args = []string{"project", "-local=true",
		"-i", cfg.PeakTablePath,
		"-b", cfg.SignalTablePath,
		"-o", "/mnt/output/" + outputBase,
		"-n", strconv.Itoa(cfg.BinCount),
		"-a", cfg.Method,
		"-s", strconv.Itoa(cfg.SampleSize),
		"-seed", strconv.FormatUint(cfg.Seed, 10),
		fmt.Sprintf("-strict=%v", cfg.Strict),
		fmt.Sprintf("-dedup=%v", cfg.Dedup),
		fmt.Sprintf("-null-fill=%s", cfg.NullFill),
		fmt.Sprintf("-perplexity=%v", cfg.Perplexity),
		fmt.Sprintf("-iterations=%d", cfg.Iterations),
	}
	if cfg.RegionsPath != "" {
		runner.Args = append(runner.Args, "-regions", cfg.RegionsPath)
	}
	if cfg.EmitPlot {
		runner.Args = append(runner.Args, "-p", "-plot-output", "/mnt/output/"+filepath.Base(cfg.PlotPath))
	}
	if cfg.MatrixPath != "" {
		runner.Args = append(runner.Args, "-output-matrix", "/mnt/output/"+filepath.Base(cfg.MatrixPath))
	}
	output, err := runner.Run()
	if err != nil {
		return "", err
	}
	return output + "/" + outputBase, nil
}

// Run merges the peak and signal tables named in cfg, projects the
// merged signal to 2 dimensions, and writes the peak table with the
// coordinates appended. Progress messages go to stdout.
func Run(cfg Config) error {
	err := cfg.Validate()
	if err != nil {
		return err
	}
	return run(cfg, os.Stdout)
}

func run(cfg Config, stdout io.Writer) error {
	logger := log.WithField("run", uuid.NewString())
	msgs := stdout
	if cfg.OutputPath == "-" {
		msgs = io.Discard
	}

	peaks, err := readTable(cfg.PeakTablePath, table.ReadPeaks)
	if err != nil {
		return err
	}
	if peaks.Duplicates > 0 {
		logger.Warnf("%s: ignored %d rows with duplicate %s", cfg.PeakTablePath, peaks.Duplicates, table.FeatureIDColumn)
	}
	signal, err := readTable(cfg.SignalTablePath, table.ReadSignal)
	if err != nil {
		return err
	}
	if signal.Duplicates > 0 {
		logger.Warnf("%s: ignored %d rows with duplicate %s", cfg.SignalTablePath, signal.Duplicates, table.FeatureIDColumn)
	}
	loaded := peaks.Len()

	if cfg.RegionsPath != "" {
		regions, err := readRegions(cfg.RegionsPath)
		if err != nil {
			return err
		}
		dropped, err := filterRegions(peaks, regions)
		if err != nil {
			return err
		}
		logger.Infof("%s: dropped %d peaks outside regions, %d remain", cfg.RegionsPath, dropped, peaks.Len())
	}

	fmt.Fprintln(msgs, "Creating PCA or TSNE...")
	res, err := Merge(peaks, signal, MergeOptions{
		Bins:   cfg.BinCount,
		Dedup:  cfg.Dedup,
		Strict: cfg.Strict,
	})
	if err != nil {
		return err
	}
	joined := len(res.IDs)
	res.Sample(cfg.SampleSize, cfg.Seed)

	coords, err := reduce(cfg.Method, res.Matrix, reduceOptions{
		Seed:       cfg.Seed,
		Perplexity: cfg.Perplexity,
		Iterations: cfg.Iterations,
	})
	if err != nil {
		return err
	}
	xs, ys, missing := attachCoordinates(peaks, res.IDs, coords, cfg.NullFill)
	if missing > 0 {
		logger.Warnf("%d peaks have no signal data, using %q for their coordinates", missing, cfg.NullFill)
	}
	err = peaks.SetColumn(cfg.Method+"_x", xs)
	if err != nil {
		return err
	}
	err = peaks.SetColumn(cfg.Method+"_y", ys)
	if err != nil {
		return err
	}

	digest, err := writeTable(cfg.OutputPath, peaks, stdout)
	if err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"filename": cfg.OutputPath,
		"rows":     peaks.Len(),
		"blake2b":  digest,
	}).Info("wrote output table")

	if cfg.MatrixPath != "" {
		err = writeNumpyMatrix(cfg.MatrixPath, res.Matrix)
		if err != nil {
			return err
		}
		err = writeNumpyMatrix(coordsPath(cfg.MatrixPath), coords)
		if err != nil {
			return err
		}
	}
	if cfg.EmitPlot {
		err = scatterPlot(cfg.PlotPath, cfg.Method, coords, res.Labels)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(msgs, banner)
	fmt.Fprintf(msgs, "Appended x and y coordinates to %s and created %s.\n", cfg.PeakTablePath, cfg.OutputPath)
	fmt.Fprintln(msgs, banner)
	fmt.Fprintln(msgs, summary(loaded, signal.Len(), joined, len(res.IDs), missing))
	return nil
}

func readTable(fnm string, read func(io.Reader, string) (*table.Table, error)) (*table.Table, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, table.CheckNotFound(fnm, err)
	}
	defer f.Close()
	return read(f, fnm)
}

func readRegions(fnm string) (*mask, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, table.CheckNotFound(fnm, err)
	}
	defer f.Close()
	return loadRegions(f, fnm)
}

// attachCoordinates returns the x and y column values for each peak
// row, looking up the projected coordinates by feature_id. Peaks that
// were not projected get nullFill.
func attachCoordinates(peaks *table.Table, ids []string, coords *mat.Dense, nullFill string) (xs, ys []string, missing int) {
	row := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, ok := row[id]; !ok {
			row[id] = i
		}
	}
	idcol := peaks.Column(table.FeatureIDColumn)
	xs = make([]string, peaks.Len())
	ys = make([]string, peaks.Len())
	for i, prow := range peaks.Rows {
		r, ok := row[prow[idcol]]
		if !ok {
			xs[i], ys[i] = nullFill, nullFill
			missing++
			continue
		}
		xs[i] = strconv.FormatFloat(coords.At(r, 0), 'g', -1, 64)
		ys[i] = strconv.FormatFloat(coords.At(r, 1), 'g', -1, 64)
	}
	return
}

// writeTable writes t to fnm ("-" for stdout) and returns the blake2b
// digest of the uncompressed output.
func writeTable(fnm string, t *table.Table, stdout io.Writer) (string, error) {
	f, err := zcreate(fnm, stdout)
	if err != nil {
		return "", err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		f.Close()
		return "", err
	}
	err = table.Write(io.MultiWriter(f, h), t)
	if err != nil {
		f.Close()
		return "", err
	}
	err = f.Close()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// coordsPath returns the numpy file name for the coordinates matrix
// that accompanies the bin matrix written to fnm.
func coordsPath(fnm string) string {
	return strings.TrimSuffix(fnm, ".npy") + ".coords.npy"
}

func summary(loaded, signal, joined, projected, missing int) string {
	tw := prettytable.NewWriter()
	tw.SetStyle(prettytable.StyleRounded)
	tw.AppendHeader(prettytable.Row{"", "peaks"})
	tw.AppendRow(prettytable.Row{"peak table", loaded})
	tw.AppendRow(prettytable.Row{"signal table", signal})
	tw.AppendRow(prettytable.Row{"joined", joined})
	tw.AppendRow(prettytable.Row{"projected", projected})
	tw.AppendRow(prettytable.Row{"no coordinates", missing})
	return tw.Render()
}
