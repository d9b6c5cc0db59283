// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"gonum.org/v1/gonum/stat/distuv"
)

var chisquared = distuv.ChiSquared{K: 1}

// chi2Pvalue returns the p-value of Pearson's chi-square test of
// independence between x and y (2x2 contingency table, 1 degree of
// freedom). It returns 1 if either variable is constant.
func chi2Pvalue(x, y []bool) float64 {
	var obs [2][2]float64
	for i, yi := range y {
		obs[b2i(x[i])][b2i(yi)]++
	}
	n := float64(len(y))
	var rowsum, colsum [2]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			rowsum[i] += obs[i][j]
			colsum[j] += obs[i][j]
		}
	}
	if rowsum[0] == 0 || rowsum[1] == 0 || colsum[0] == 0 || colsum[1] == 0 {
		return 1
	}
	sum := 0.0
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			exp := rowsum[i] * colsum[j] / n
			d := obs[i][j] - exp
			sum += d * d / exp
		}
	}
	return chisquared.Survival(sum)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
