// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type assocSuite struct{}

var _ = check.Suite(&assocSuite{})

func (s *assocSuite) TestChi2Pvalue(c *check.C) {
	a := make([]bool, 54)
	b := make([]bool, 54)
	for i := 0; i < 25; i++ {
		a[i] = true
		b[i] = true
	}
	for i := 25; i < 31; i++ {
		a[i] = true
	}
	for i := 31; i < 40; i++ {
		b[i] = true
	}
	c.Check(fmt.Sprintf("%.8f", chi2Pvalue(a, b)), check.Equals, "0.00178505")
	c.Check(chi2Pvalue(a, a) < 1e-10, check.Equals, true)
	// Constant variable.
	c.Check(chi2Pvalue(make([]bool, 54), b), check.Equals, 1.0)
}

// Case peaks have higher signal in bin 0, but the groups overlap.
var (
	assocCases    = []float64{3, 4, 5, 6, 7, 2, 3, 4, 5, 1}
	assocControls = []float64{1, 2, 0, 1, 2, 3, 0, 1, 2, 4}
	assocNoise    = []float64{2, 0, 1, 3, 2, 1, 0, 2, 1, 3}
)

func (s *assocSuite) TestGLMPvalue(c *check.C) {
	outcome := make([]bool, 20)
	signal := make([]float64, 20)
	noise := make([]float64, 20)
	for i := 0; i < 10; i++ {
		outcome[i] = true
		signal[i] = assocCases[i]
		signal[i+10] = assocControls[i]
		noise[i] = assocNoise[i]
		noise[i+10] = assocNoise[9-i]
	}
	pvalue := glmPvalueFunc(outcome)
	p := pvalue(signal)
	c.Check(p < 0.05, check.Equals, true, check.Commentf("p = %v", p))
	// Same values in both groups.
	p = pvalue(noise)
	c.Check(p > 0.5, check.Equals, true, check.Commentf("p = %v", p))
	c.Check(pvalue(make([]float64, 20)), check.Equals, 1.0)
}

func (s *assocSuite) TestBinAssociations(c *check.C) {
	isCase := make([]bool, 20)
	matrix := mat.NewDense(20, 3, nil)
	for i := 0; i < 10; i++ {
		isCase[i] = true
		matrix.Set(i, 0, assocCases[i])
		matrix.Set(i+10, 0, assocControls[i])
		matrix.Set(i, 1, assocNoise[i])
		matrix.Set(i+10, 1, assocNoise[9-i])
	}
	out := binAssociations(matrix, isCase, 2)
	c.Check(out.Header, check.DeepEquals, []string{"bin", "chi2_pvalue", "glm_pvalue"})
	c.Assert(out.Rows, check.HasLen, 3)
	for bin, row := range out.Rows {
		c.Check(row[0], check.Equals, strconv.Itoa(bin))
		for _, cell := range row[1:] {
			p, err := strconv.ParseFloat(cell, 64)
			c.Check(err, check.IsNil)
			c.Check(p >= 0 && p <= 1, check.Equals, true, check.Commentf("bin %d: %s", bin, cell))
		}
	}
	// Bin 2 is all zeros.
	c.Check(out.Rows[2][1:], check.DeepEquals, []string{"1", "1"})
}

func (s *assocSuite) TestTagAssocCommand(c *check.C) {
	tmpdir := c.MkDir()
	var peaks, signal strings.Builder
	peaks.WriteString("feature_id\tTags\n")
	signal.WriteString("#header\n")
	for i := 0; i < 20; i++ {
		tag, v := "peak", assocCases[i%10]
		if i >= 10 {
			tag, v = "null", assocControls[i%10]
		}
		fmt.Fprintf(&peaks, "chr1_%d_%d\t%s\n", i*100, i*100+50, tag)
		fmt.Fprintf(&signal, "chr1\t%d\t%d\t%v\t%v\n", i*100, i*100+50, v, assocNoise[i%10])
	}
	c.Assert(ioutil.WriteFile(tmpdir+"/peaks.tsv", []byte(peaks.String()), 0666), check.IsNil)
	c.Assert(ioutil.WriteFile(tmpdir+"/signal.tsv", []byte(signal.String()), 0666), check.IsNil)

	var stdout, stderr bytes.Buffer
	exited := (&tagAssoc{}).RunCommand("peakplot tag-assoc", []string{"-i", tmpdir + "/peaks.tsv", "-b", tmpdir + "/signal.tsv", "-n", "2"}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	lines := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
	c.Assert(lines, check.HasLen, 3)
	c.Check(lines[0], check.Equals, "bin\tchi2_pvalue\tglm_pvalue")
	fields := strings.Split(lines[1], "\t")
	glmp, err := strconv.ParseFloat(fields[2], 64)
	c.Check(err, check.IsNil)
	c.Check(glmp < 0.05, check.Equals, true)
	c.Check(math.IsNaN(glmp), check.Equals, false)

	// No Tags column.
	c.Assert(ioutil.WriteFile(tmpdir+"/untagged.tsv", []byte("feature_id\nchr1_0_50\nchr1_100_150\n"), 0666), check.IsNil)
	exited = (&tagAssoc{}).RunCommand("peakplot tag-assoc", []string{"-i", tmpdir + "/untagged.tsv", "-b", tmpdir + "/signal.tsv", "-n", "2"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 1)
}
