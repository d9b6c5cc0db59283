// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import "sort"

// lisLen returns the length of the longest strictly increasing
// subsequence of seq.
func lisLen(seq []int) int {
	// tails[j] is the smallest value that ends an increasing
	// subsequence of length j+1 seen so far.
	tails := make([]int, 0, len(seq))
	for _, x := range seq {
		j := sort.SearchInts(tails, x)
		if j == len(tails) {
			tails = append(tails, x)
		} else {
			tails[j] = x
		}
	}
	return len(tails)
}
