// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/arvados/peakplot/table"
)

type interval struct {
	start int
	end   int
}

type intervalTreeNode struct {
	interval interval
	maxend   int
}

type intervalTree []intervalTreeNode

// mask is a set of closed intervals on named sequences, queried for
// overlap after Freeze.
type mask struct {
	intervals map[string][]interval
	itrees    map[string]intervalTree
	frozen    bool
}

func (m *mask) Add(seqname string, start, end int) {
	if m.intervals == nil {
		m.intervals = map[string][]interval{}
	}
	m.intervals[seqname] = append(m.intervals[seqname], interval{start, end})
}

func (m *mask) Freeze() {
	m.itrees = map[string]intervalTree{}
	for seqname, intervals := range m.intervals {
		m.itrees[seqname] = m.freeze(intervals)
	}
	m.frozen = true
}

// Check returns true if [start, end] overlaps any interval added on
// seqname.
func (m *mask) Check(seqname string, start, end int) bool {
	if !m.frozen {
		panic("bug: (*mask)Check() called before Freeze()")
	}
	return m.itrees[seqname].check(0, interval{start, end})
}

func (m *mask) freeze(in []interval) intervalTree {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		return in[i].start < in[j].start
	})
	itreesize := 1
	for itreesize < len(in) {
		itreesize = itreesize * 2
	}
	itree := make(intervalTree, itreesize)
	itree.importSlice(0, in)
	for i := len(in); i < itreesize; i++ {
		itree[i].maxend = -1
	}
	return itree
}

func (itree intervalTree) check(root int, q interval) bool {
	return root < len(itree) &&
		itree[root].maxend >= q.start &&
		((itree[root].interval.start <= q.end && itree[root].interval.end >= q.start) ||
			itree.check(root*2+1, q) ||
			itree.check(root*2+2, q))
}

func (itree intervalTree) importSlice(root int, in []interval) int {
	mid := len(in) / 2
	node := intervalTreeNode{interval: in[mid], maxend: in[mid].end}
	if mid > 0 {
		end := itree.importSlice(root*2+1, in[0:mid])
		if end > node.maxend {
			node.maxend = end
		}
	}
	if mid+1 < len(in) {
		end := itree.importSlice(root*2+2, in[mid+1:])
		if end > node.maxend {
			node.maxend = end
		}
	}
	itree[root] = node
	return node.maxend
}

// loadRegions reads a bed file (0-based, half-open intervals) into a
// frozen mask. Header, track and comment lines are skipped.
func loadRegions(r io.Reader, name string) (*mask, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	m := &mask{}
	for lineNum, line := range bytes.Split(buf, []byte{'\n'}) {
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 || line[0] == '#' || bytes.HasPrefix(line, []byte("track")) || bytes.HasPrefix(line, []byte("browser")) {
			continue
		}
		fields := bytes.Split(line, []byte{'\t'})
		if len(fields) < 3 {
			return nil, &table.ParseError{Name: name, Line: lineNum + 1, Msg: fmt.Sprintf("%d fields < 3", len(fields))}
		}
		start, err := strconv.Atoi(string(fields[1]))
		if err != nil {
			return nil, &table.ParseError{Name: name, Line: lineNum + 1, Msg: fmt.Sprintf("start: %s", err)}
		}
		end, err := strconv.Atoi(string(fields[2]))
		if err != nil {
			return nil, &table.ParseError{Name: name, Line: lineNum + 1, Msg: fmt.Sprintf("end: %s", err)}
		}
		if end <= start {
			continue
		}
		m.Add(string(fields[0]), start, end-1)
	}
	m.Freeze()
	return m, nil
}

// parseFeatureID splits a feature_id into chrom, start and end. The
// chrom part may itself contain underscores.
func parseFeatureID(id string) (chrom string, start, end int, err error) {
	j := strings.LastIndexByte(id, '_')
	if j < 0 {
		return "", 0, 0, fmt.Errorf("malformed feature_id %q", id)
	}
	i := strings.LastIndexByte(id[:j], '_')
	if i < 0 {
		return "", 0, 0, fmt.Errorf("malformed feature_id %q", id)
	}
	start, err = strconv.Atoi(id[i+1 : j])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed feature_id %q: %w", id, err)
	}
	end, err = strconv.Atoi(id[j+1:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed feature_id %q: %w", id, err)
	}
	return id[:i], start, end, nil
}

// filterRegions drops peaks that do not overlap any region in m, and
// returns the number of peaks dropped.
func filterRegions(peaks *table.Table, m *mask) (int, error) {
	idcol := peaks.Column(table.FeatureIDColumn)
	var err error
	dropped := peaks.Filter(func(row []string) bool {
		chrom, start, end, perr := parseFeatureID(row[idcol])
		if perr != nil {
			if err == nil {
				err = perr
			}
			return false
		}
		if end <= start {
			end = start + 1
		}
		return m.Check(chrom, start, end-1)
	})
	return dropped, err
}
