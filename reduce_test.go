// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type reduceSuite struct{}

var _ = check.Suite(&reduceSuite{})

func rowDistance(m mat.Matrix, i, j int) float64 {
	_, cols := m.Dims()
	d := 0.0
	for k := 0; k < cols; k++ {
		diff := m.At(i, k) - m.At(j, k)
		d += diff * diff
	}
	return math.Sqrt(d)
}

func (s *reduceSuite) TestPCA(c *check.C) {
	// Rank 2 after centring: the third column is the sum of the
	// first two, so a 2-component projection preserves distances.
	data := mat.NewDense(5, 3, []float64{
		1, 2, 3,
		4, 0, 4,
		-2, 5, 3,
		0, 0, 0,
		3, -1, 2,
	})
	out, err := reduce(methodPCA, data, reduceOptions{})
	c.Assert(err, check.IsNil)
	rows, cols := out.Dims()
	c.Check(rows, check.Equals, 5)
	c.Check(cols, check.Equals, 2)
	for i := 0; i < rows; i++ {
		for j := i + 1; j < rows; j++ {
			c.Check(math.Abs(rowDistance(out, i, j)-rowDistance(data, i, j)) < 1e-9, check.Equals, true, check.Commentf("rows %d, %d", i, j))
		}
	}
	// Scores are centred.
	for j := 0; j < 2; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += out.At(i, j)
		}
		c.Check(math.Abs(sum) < 1e-9, check.Equals, true)
	}

	again, err := reduce(methodPCA, data, reduceOptions{})
	c.Assert(err, check.IsNil)
	c.Check(mat.Equal(out, again), check.Equals, true)
}

func (s *reduceSuite) TestPCASingleBin(c *check.C) {
	out, err := reduce(methodPCA, mat.NewDense(3, 1, []float64{1, 2, 6}), reduceOptions{})
	c.Assert(err, check.IsNil)
	c.Check(mat.Col(nil, 0, out), check.DeepEquals, []float64{-2, -1, 3})
	c.Check(mat.Col(nil, 1, out), check.DeepEquals, []float64{0, 0, 0})
}

func (s *reduceSuite) TestReduceErrors(c *check.C) {
	_, err := reduce(methodPCA, mat.NewDense(1, 3, nil), reduceOptions{})
	c.Check(err, check.ErrorMatches, `cannot project 1 peak\(s\): need at least 2`)
	_, err = reduce("UMAP", mat.NewDense(3, 3, nil), reduceOptions{})
	c.Check(err, check.ErrorMatches, `unknown method "UMAP"`)
}

// twoClusters returns 2n rows; rows [0,n) are near the origin, rows
// [n,2n) are near (50,50,...).
func twoClusters(n, cols int) *mat.Dense {
	rnd := rand.New(rand.NewSource(7))
	data := mat.NewDense(2*n, cols, nil)
	for i := 0; i < 2*n; i++ {
		offset := 0.0
		if i >= n {
			offset = 50
		}
		for j := 0; j < cols; j++ {
			data.Set(i, j, offset+rnd.NormFloat64())
		}
	}
	return data
}

func (s *reduceSuite) TestTSNEDeterministic(c *check.C) {
	data := twoClusters(10, 4)
	opts := reduceOptions{Seed: 3, Perplexity: 5, Iterations: 100}
	a, err := reduce(methodTSNE, data, opts)
	c.Assert(err, check.IsNil)
	b, err := reduce(methodTSNE, data, opts)
	c.Assert(err, check.IsNil)
	c.Check(mat.Equal(a, b), check.Equals, true)

	opts.Seed = 4
	d, err := reduce(methodTSNE, data, opts)
	c.Assert(err, check.IsNil)
	c.Check(mat.Equal(a, d), check.Equals, false)
}

func (s *reduceSuite) TestTSNESeparatesClusters(c *check.C) {
	n := 10
	data := twoClusters(n, 4)
	out, err := reduce(methodTSNE, data, reduceOptions{Seed: 1, Perplexity: 5, Iterations: 500})
	c.Assert(err, check.IsNil)
	rows, cols := out.Dims()
	c.Assert(rows, check.Equals, 2*n)
	c.Assert(cols, check.Equals, 2)
	var within, between float64
	var nwithin, nbetween int
	for i := 0; i < rows; i++ {
		for j := i + 1; j < rows; j++ {
			d := rowDistance(out, i, j)
			if (i < n) == (j < n) {
				within += d
				nwithin++
			} else {
				between += d
				nbetween++
			}
		}
	}
	c.Check(within/float64(nwithin) < between/float64(nbetween), check.Equals, true)
}

func (s *reduceSuite) TestTSNETinyInput(c *check.C) {
	out, err := reduce(methodTSNE, mat.NewDense(3, 2, []float64{0, 0, 1, 1, 5, 5}), reduceOptions{Seed: 1, Perplexity: 30, Iterations: 50})
	c.Assert(err, check.IsNil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			c.Check(math.IsNaN(out.At(i, j)), check.Equals, false)
		}
	}
}
