// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/arvados/peakplot/table"
	"github.com/sergi/go-diff/diffmatchpatch"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const tagsColumn = "Tags"

type MergeOptions struct {
	// Number of bin columns, taken from the end of each joined
	// row.
	Bins int
	// Drop joined rows with a duplicate feature_id, keeping the
	// first.
	Dedup bool
	// Return a *JoinOrderWarning as an error instead of logging
	// it.
	Strict bool
}

type MergeResult struct {
	// Peak table as loaded, in its original order.
	Peaks *table.Table
	// feature_id of each matrix row.
	IDs []string
	// len(IDs) x Bins signal values.
	Matrix *mat.Dense
	// Tags value of each matrix row. Empty if the peak table has
	// no Tags column.
	Labels []string
	// Non-nil if the joined rows are not in the same order as the
	// peak table.
	OrderMismatch *JoinOrderWarning
}

// JoinOrderWarning reports that the feature_id sequence of the joined
// table differs from the peak table's.
type JoinOrderWarning struct {
	Peaks     int // rows in peak table
	Joined    int // rows in joined table
	Missing   int // peaks with no joined row
	Displaced int // joined rows out of peak table order
	Diff      string
}

func (w *JoinOrderWarning) Error() string {
	msg := fmt.Sprintf("joined table (%d rows) is not in the same order as peak table (%d rows): %d peaks missing, %d rows displaced", w.Joined, w.Peaks, w.Missing, w.Displaced)
	if w.Diff != "" {
		msg += ": " + w.Diff
	}
	return msg
}

// MissingColumnWarning reports an absent optional column.
type MissingColumnWarning struct {
	Column string
}

func (w *MissingColumnWarning) Error() string {
	return fmt.Sprintf("peak table has no %q column, label sequence is empty", w.Column)
}

// Merge joins the peak and signal tables on feature_id and returns
// the last opts.Bins columns of each joined row as a matrix.
func Merge(peaks, signal *table.Table, opts MergeOptions) (*MergeResult, error) {
	if opts.Bins < 1 {
		return nil, fmt.Errorf("invalid bin count %d", opts.Bins)
	}
	if have := len(signal.Header) - 1; have < opts.Bins {
		return nil, &table.ParseError{Name: "signal table", Msg: fmt.Sprintf("%d value columns, fewer than %d bins", have, opts.Bins)}
	}
	joined, err := table.Join(peaks, signal, table.FeatureIDColumn)
	if err != nil {
		return nil, err
	}
	idcol := joined.Column(table.FeatureIDColumn)
	if opts.Dedup {
		if n := joined.Dedup(idcol); n > 0 {
			log.Infof("dropped %d duplicate rows from joined table", n)
		}
	}
	if joined.Len() == 0 {
		return nil, errors.New("no feature_id in common between peak table and signal table")
	}
	log.Infof("joined %d peaks with %d signal rows: %d rows", peaks.Len(), signal.Len(), joined.Len())

	res := &MergeResult{
		Peaks:  peaks,
		IDs:    joined.Values(table.FeatureIDColumn),
		Matrix: mat.NewDense(joined.Len(), opts.Bins, nil),
	}
	firstBin := len(joined.Header) - opts.Bins
	for i, row := range joined.Rows {
		for j, cell := range row[firstBin:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("peak %s: bin %d (column %q): %w", res.IDs[i], j, joined.Header[firstBin+j], err)
			}
			res.Matrix.Set(i, j, v)
		}
	}

	if peakIDs := peaks.Values(table.FeatureIDColumn); !equalStrings(peakIDs, res.IDs) {
		res.OrderMismatch = checkOrder(peakIDs, res.IDs)
		if opts.Strict {
			return nil, res.OrderMismatch
		}
		log.Warnf("caution: %s", res.OrderMismatch)
	}

	res.Labels = joined.Values(tagsColumn)
	if res.Labels == nil {
		res.Labels = []string{}
		log.Warn(&MissingColumnWarning{Column: tagsColumn})
	}
	return res, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Max number of differing ids shown in a JoinOrderWarning.
const orderDiffMax = 4

func checkOrder(peakIDs, joinedIDs []string) *JoinOrderWarning {
	w := &JoinOrderWarning{Peaks: len(peakIDs), Joined: len(joinedIDs)}
	pos := make(map[string]int, len(peakIDs))
	for i, id := range peakIDs {
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}
	seen := map[string]bool{}
	seq := make([]int, 0, len(joinedIDs))
	for _, id := range joinedIDs {
		if p, ok := pos[id]; ok {
			seq = append(seq, p)
			seen[id] = true
		}
	}
	w.Missing = len(pos) - len(seen)
	w.Displaced = len(seq) - lisLen(seq)

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(strings.Join(peakIDs, "\n")+"\n", strings.Join(joinedIDs, "\n")+"\n")
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	var shown []string
	more := 0
	for _, d := range diffs {
		var sign string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			sign = "-"
		case diffmatchpatch.DiffInsert:
			sign = "+"
		default:
			continue
		}
		for _, id := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			if len(shown) < orderDiffMax {
				shown = append(shown, sign+id)
			} else {
				more++
			}
		}
	}
	if more > 0 {
		shown = append(shown, fmt.Sprintf("(%d more)", more))
	}
	w.Diff = strings.Join(shown, " ")
	return w
}

// Sample reduces the result to n randomly chosen joined peaks,
// keeping their relative order, and drops all other rows from Peaks.
// It does nothing if n is zero or at least the number of joined
// peaks; asking for more peaks than were joined is logged as a
// warning.
func (res *MergeResult) Sample(n int, seed uint64) {
	rows, cols := res.Matrix.Dims()
	if n > rows {
		log.Warnf("sample size %d exceeds %d joined peaks, using all of them", n, rows)
	}
	if n <= 0 || n >= rows {
		return
	}
	pick := rand.New(rand.NewSource(seed)).Perm(rows)[:n]
	sort.Ints(pick)

	ids := make([]string, n)
	matrix := mat.NewDense(n, cols, nil)
	var labels []string
	if len(res.Labels) > 0 {
		labels = make([]string, n)
	} else {
		labels = []string{}
	}
	keep := make(map[string]bool, n)
	for i, row := range pick {
		ids[i] = res.IDs[row]
		matrix.SetRow(i, res.Matrix.RawRowView(row))
		if len(labels) > 0 {
			labels[i] = res.Labels[row]
		}
		keep[ids[i]] = true
	}
	res.IDs, res.Matrix, res.Labels = ids, matrix, labels

	idcol := res.Peaks.Column(table.FeatureIDColumn)
	res.Peaks.Filter(func(row []string) bool { return keep[row[idcol]] })
	log.Infof("sampled %d of %d peaks (seed %d)", n, rows, seed)
}
