// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// scatterPlot saves a scatter plot of the rows of coords (n x 2) to
// fnm. If labels is non-empty, points are colored by label. The image
// format follows the file extension.
func scatterPlot(fnm, method string, coords *mat.Dense, labels []string) error {
	rows, _ := coords.Dims()
	groups := map[string]plotter.XYs{}
	for i := 0; i < rows; i++ {
		label := ""
		if len(labels) == rows {
			label = labels[i]
		}
		groups[label] = append(groups[label], plotter.XY{X: coords.At(i, 0), Y: coords.At(i, 1)})
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s projection of %d peaks", method, rows)
	p.X.Label.Text = method + "_x"
	p.Y.Label.Text = method + "_y"
	for i, name := range names {
		s, err := plotter.NewScatter(groups[name])
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Shape = plotutil.Shape(i)
		s.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(s)
		if name != "" {
			p.Legend.Add(name, s)
		}
	}
	log.WithFields(log.Fields{
		"filename": fnm,
		"points":   rows,
		"groups":   len(names),
	}).Infof("writing plot: %s", fnm)
	return p.Save(8*vg.Inch, 8*vg.Inch, fnm)
}
