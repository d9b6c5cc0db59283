// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package table

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Cell values treated as missing in a signal table. They are
// replaced with "0" (no signal).
var missingValues = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

func splitLines(buf []byte, fn func(lineNum int, fields []string) error) error {
	lineNum := 0
	for _, line := range bytes.Split(buf, []byte{'\n'}) {
		lineNum++
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		err := fn(lineNum, strings.Split(string(line), "\t"))
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadTable reads a tab-separated table with a header row. Every row
// must have as many fields as the header. Rows are kept as they are:
// no key column is added and duplicates are not removed.
func ReadTable(r io.Reader, name string) (*Table, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	t := &Table{}
	err = splitLines(buf, func(lineNum int, fields []string) error {
		if t.Header == nil {
			t.Header = fields
			return nil
		}
		if len(fields) != len(t.Header) {
			return &ParseError{Name: name, Line: lineNum, Msg: fmt.Sprintf("%d fields, header has %d", len(fields), len(t.Header))}
		}
		t.Rows = append(t.Rows, fields)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if t.Header == nil {
		return nil, &ParseError{Name: name, Msg: "no header row"}
	}
	return t, nil
}

// ReadPeaks reads a tab-separated peak table with a header row.
//
// If the header has no feature_id column, one is synthesized from the
// first three columns (chrom, start, end), inserted as column 0, and
// SyntheticKey is set so writers can leave it out again.
// Rows with duplicate feature_id are dropped, keeping the first.
func ReadPeaks(r io.Reader, name string) (*Table, error) {
	t, err := ReadTable(r, name)
	if err != nil {
		return nil, err
	}
	if t.Column(FeatureIDColumn) < 0 {
		if len(t.Header) < 3 {
			return nil, &ParseError{Name: name, Line: 1, Msg: fmt.Sprintf("no %s column, and %d columns < 3 needed to build one", FeatureIDColumn, len(t.Header))}
		}
		t.Header = append([]string{FeatureIDColumn}, t.Header...)
		for i, row := range t.Rows {
			t.Rows[i] = append([]string{FeatureID(row[0], row[1], row[2])}, row...)
		}
		t.SyntheticKey = true
	}
	t.Duplicates = t.Dedup(t.Column(FeatureIDColumn))
	return t, nil
}

// ReadSignal reads a headerless tab-separated signal table, e.g., the
// output of deepTools computeMatrix. The first line is skipped.
// Columns 0-2 are chrom, start, end; the resulting table has a
// synthesized feature_id column followed by the original columns,
// named by position ("0", "1", ...). Missing cells become "0". Rows
// with duplicate feature_id are dropped, keeping the first.
func ReadSignal(r io.Reader, name string) (*Table, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if eol := bytes.IndexByte(buf, '\n'); eol >= 0 {
		buf = buf[eol+1:]
	} else {
		buf = nil
	}
	t := &Table{}
	width := -1
	err = splitLines(buf, func(lineNum int, fields []string) error {
		lineNum++ // account for the skipped line
		if len(fields) < 3 {
			return &ParseError{Name: name, Line: lineNum, Msg: fmt.Sprintf("%d fields < 3 (chrom, start, end)", len(fields))}
		}
		if width < 0 {
			width = len(fields)
		} else if len(fields) != width {
			return &ParseError{Name: name, Line: lineNum, Msg: fmt.Sprintf("%d fields, expected %d", len(fields), width)}
		}
		row := make([]string, 0, len(fields)+1)
		row = append(row, "")
		for _, f := range fields {
			if missingValues[f] {
				f = "0"
			}
			row = append(row, f)
		}
		row[0] = FeatureID(row[1], row[2], row[3])
		t.Rows = append(t.Rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if width < 0 {
		width = 3
	}
	t.Header = make([]string, width+1)
	t.Header[0] = FeatureIDColumn
	for i := 0; i < width; i++ {
		t.Header[i+1] = strconv.Itoa(i)
	}
	t.Duplicates = t.Dedup(0)
	return t, nil
}

// ReadPeaksFile is ReadPeaks on a local file.
func ReadPeaksFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, CheckNotFound(path, err)
	}
	defer f.Close()
	return ReadPeaks(f, path)
}

// ReadSignalFile is ReadSignal on a local file.
func ReadSignalFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, CheckNotFound(path, err)
	}
	defer f.Close()
	return ReadSignal(f, path)
}
