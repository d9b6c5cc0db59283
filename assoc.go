// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/arvados/peakplot/table"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

type tagAssoc struct{}

func (cmd *tagAssoc) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	peaksFilename := flags.String("i", "", "tagged peak table `file` (TSV)")
	signalFilename := flags.String("b", "", "bigWig signal `file` (computeMatrix TSV)")
	outputFilename := flags.String("o", "-", "output `file`")
	bins := flags.Int("n", 100, "number of signal bins per peak")
	caseTag := flags.String("case", "peak", "Tags `value` of case peaks (all other values are controls)")
	threads := flags.Int("j", 4, "max number of bins to fit concurrently")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *peaksFilename == "" || *signalFilename == "" {
		err = errors.New("-i and -b are required")
		return 2
	}

	peaks, err := readTable(*peaksFilename, table.ReadPeaks)
	if err != nil {
		return 1
	}
	signal, err := readTable(*signalFilename, table.ReadSignal)
	if err != nil {
		return 1
	}
	res, err := Merge(peaks, signal, MergeOptions{Bins: *bins, Dedup: true})
	if err != nil {
		return 1
	}
	if len(res.Labels) == 0 {
		err = &MissingColumnWarning{Column: tagsColumn}
		return 1
	}
	isCase := make([]bool, len(res.Labels))
	cases := 0
	for i, tag := range res.Labels {
		isCase[i] = tag == *caseTag
		if isCase[i] {
			cases++
		}
	}
	log.Infof("%d case peaks (%s=%q), %d controls", cases, tagsColumn, *caseTag, len(isCase)-cases)

	out := binAssociations(res.Matrix, isCase, *threads)
	_, err = writeTable(*outputFilename, out, stdout)
	if err != nil {
		return 1
	}
	return 0
}

// binAssociations tests each column of matrix for association with
// isCase, and returns a table with one row per bin.
func binAssociations(matrix *mat.Dense, isCase []bool, threads int) *table.Table {
	rows, cols := matrix.Dims()
	glmPvalue := glmPvalueFunc(isCase)
	out := &table.Table{
		Header: []string{"bin", "chi2_pvalue", "glm_pvalue"},
		Rows:   make([][]string, cols),
	}
	thr := throttle{Max: threads}
	for bin := 0; bin < cols; bin++ {
		bin := bin
		thr.Go(func() error {
			series := mat.Col(nil, bin, matrix)
			present := make([]bool, rows)
			for i, v := range series {
				present[i] = v > 0
			}
			out.Rows[bin] = []string{
				strconv.Itoa(bin),
				strconv.FormatFloat(chi2Pvalue(present, isCase), 'g', -1, 64),
				strconv.FormatFloat(glmPvalue(series), 'g', -1, 64),
			}
			return nil
		})
	}
	thr.Wait()
	return out
}
