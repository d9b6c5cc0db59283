// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package table loads, joins and writes the tab-separated peak
// tables exchanged with Zegami: one row per genomic peak, keyed by a
// synthesized feature_id.
package table

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// FeatureIDColumn is the name of the peak key column.
const FeatureIDColumn = "feature_id"

// FeatureID returns the peak key for the given interval.
func FeatureID(chrom, start, end string) string {
	return chrom + "_" + start + "_" + end
}

// Table is an ordered set of rows sharing one header. Every row has
// exactly len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string

	// Number of rows dropped as duplicates when the table was
	// loaded.
	Duplicates int

	// The feature_id column was built at load time and is not
	// part of the source file.
	SyntheticKey bool
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the index of the first column with the given name,
// or -1 if there is none.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Values returns a copy of the named column, or nil if the table has
// no such column.
func (t *Table) Values(name string) []string {
	col := t.Column(name)
	if col < 0 {
		return nil
	}
	vals := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		vals[i] = row[col]
	}
	return vals
}

// addColumn returns the index of the named column, appending an
// empty column first if needed.
func (t *Table) addColumn(name string) int {
	if col := t.Column(name); col >= 0 {
		return col
	}
	t.Header = append(t.Header, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
	return len(t.Header) - 1
}

// SetColumn replaces the values of the named column, appending it if
// the table does not have one yet.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %q: %d values for %d rows", name, len(values), len(t.Rows))
	}
	col := t.addColumn(name)
	for i, v := range values {
		t.Rows[i][col] = v
	}
	return nil
}

// Filter keeps the rows for which keep returns true, preserving their
// order, and returns the number of rows removed.
func (t *Table) Filter(keep func(row []string) bool) int {
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if keep(row) {
			kept = append(kept, row)
		}
	}
	removed := len(t.Rows) - len(kept)
	for i := len(kept); i < len(t.Rows); i++ {
		t.Rows[i] = nil
	}
	t.Rows = kept
	return removed
}

// Dedup drops every row whose value in column col has already
// appeared in an earlier row. Row order is preserved. It returns the
// number of rows dropped.
func (t *Table) Dedup(col int) int {
	seen := make(map[string]bool, len(t.Rows))
	return t.Filter(func(row []string) bool {
		if seen[row[col]] {
			return false
		}
		seen[row[col]] = true
		return true
	})
}

// Join returns the inner join of left and right on the named key
// column. Output rows follow left's row order; each output row is the
// left row followed by the matching right row without its key cell.
// A left row matching several right rows yields one output row per
// match, in right's order.
func Join(left, right *Table, key string) (*Table, error) {
	lcol := left.Column(key)
	if lcol < 0 {
		return nil, fmt.Errorf("join: left table has no %q column", key)
	}
	rcol := right.Column(key)
	if rcol < 0 {
		return nil, fmt.Errorf("join: right table has no %q column", key)
	}
	index := make(map[string][]int, len(right.Rows))
	for i, row := range right.Rows {
		index[row[rcol]] = append(index[row[rcol]], i)
	}
	out := &Table{Header: append(append([]string(nil), left.Header...), without(right.Header, rcol)...)}
	for _, lrow := range left.Rows {
		for _, ri := range index[lrow[lcol]] {
			row := make([]string, 0, len(out.Header))
			row = append(row, lrow...)
			row = append(row, without(right.Rows[ri], rcol)...)
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

func without(in []string, skip int) []string {
	out := make([]string, 0, len(in)-1)
	out = append(out, in[:skip]...)
	return append(out, in[skip+1:]...)
}

// Write writes t to w as tab-separated text with a header row. A
// synthetic feature_id column is left out, so a table read with
// ReadPeaks is written back with the source file's columns.
func Write(w io.Writer, t *Table) error {
	skip := -1
	if t.SyntheticKey {
		skip = t.Column(FeatureIDColumn)
	}
	cells := func(row []string) string {
		if skip >= 0 {
			row = without(row, skip)
		}
		return strings.Join(row, "\t")
	}
	bufw := bufio.NewWriter(w)
	_, err := fmt.Fprintln(bufw, cells(t.Header))
	if err != nil {
		return err
	}
	for _, row := range t.Rows {
		_, err = fmt.Fprintln(bufw, cells(row))
		if err != nil {
			return err
		}
	}
	return bufw.Flush()
}
