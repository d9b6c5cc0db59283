// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package table

// Columns of a combined group table, in Zegami's order.
var GroupHeader = []string{
	FeatureIDColumn, "image", "chr",
	"bp start", "bp end", "FDR",
	"fold_enrichment", "negLog10Pvalue",
	"num_tags", "peak_length", "summit",
	"TSNE_JK_x", "TSNE_JK_y", "Tags", "plot_name",
	"peak_type", "position",
}

// NewGroupTable returns an empty table with GroupHeader columns.
func NewGroupTable() *Table {
	return &Table{Header: append([]string(nil), GroupHeader...)}
}

// AppendGroup appends every row of batch to dst, with plot_name,
// peak_type and position set to the given values. Columns are matched
// by name; columns not yet in dst are added, and cells with no value
// are left empty.
func AppendGroup(dst, batch *Table, name, peakType, position string) {
	dstcol := make([]int, len(batch.Header))
	for i, h := range batch.Header {
		dstcol[i] = dst.addColumn(h)
	}
	nameCol := dst.addColumn("plot_name")
	typeCol := dst.addColumn("peak_type")
	posCol := dst.addColumn("position")
	for _, brow := range batch.Rows {
		row := make([]string, len(dst.Header))
		for i, v := range brow {
			row[dstcol[i]] = v
		}
		row[nameCol] = name
		row[typeCol] = peakType
		row[posCol] = position
		dst.Rows = append(dst.Rows, row)
	}
}
