// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"fmt"

	"github.com/james-bowman/nlp"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type reduceOptions struct {
	Seed       uint64
	Perplexity float64
	Iterations int
}

// reduce projects each row of data to 2 dimensions using the given
// method (PCA or TSNE) and returns a rows x 2 matrix.
func reduce(method string, data *mat.Dense, opts reduceOptions) (*mat.Dense, error) {
	rows, cols := data.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("cannot project %d peak(s): need at least 2", rows)
	}
	switch method {
	case methodPCA:
		return pca2(data)
	case methodTSNE:
		t := &tsne{
			Perplexity: opts.Perplexity,
			Iterations: opts.Iterations,
			Seed:       opts.Seed,
		}
		log.Printf("fitting TSNE: %d rows, %d cols, perplexity %v", rows, cols, t.Perplexity)
		return t.Embed(data), nil
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

// pca2 returns the first two principal component scores of each row
// of data.
func pca2(data *mat.Dense) (*mat.Dense, error) {
	rows, cols := data.Dims()
	log.Printf("fitting PCA: %d rows, %d cols", rows, cols)
	centred := mat.NewDense(rows, cols, nil)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, data)
		mean := stat.Mean(col, nil)
		for i, v := range col {
			centred.Set(i, j, v-mean)
		}
	}

	out := mat.NewDense(rows, 2, nil)
	if cols < 2 {
		out.SetCol(0, mat.Col(nil, 0, centred))
		return out, nil
	}

	// nlp expects one column per observation.
	mtx := centred.T()
	transformer := nlp.NewPCA(2)
	transformer.Fit(mtx)
	mtx, err := transformer.Transform(mtx)
	if err != nil {
		return nil, err
	}
	mtx = mtx.T()

	r, c := mtx.Dims()
	for i := 0; i < r && i < rows; i++ {
		for j := 0; j < c && j < 2; j++ {
			out.Set(i, j, mtx.At(i, j))
		}
	}
	return out, nil
}
