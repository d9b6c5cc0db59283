// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/arvados/peakplot/table"
	log "github.com/sirupsen/logrus"
)

type appendGroups struct{}

// groupSpec is one "name:peak_type:position:file" argument.
type groupSpec struct {
	name, peakType, position, path string
}

func parseGroupSpec(arg string) (groupSpec, error) {
	parts := strings.SplitN(arg, ":", 4)
	if len(parts) != 4 || parts[3] == "" {
		return groupSpec{}, fmt.Errorf("invalid group %q: expected name:peak_type:position:file", arg)
	}
	return groupSpec{parts[0], parts[1], parts[2], parts[3]}, nil
}

func (cmd *appendGroups) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s [options] name:peak_type:position:file.tsv ...\n", prog)
		flags.PrintDefaults()
	}
	outputFilename := flags.String("o", "-", "output `file`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	var groups []groupSpec
	for _, arg := range flags.Args() {
		var g groupSpec
		g, err = parseGroupSpec(arg)
		if err != nil {
			return 2
		}
		groups = append(groups, g)
	}

	combined := table.NewGroupTable()
	for _, g := range groups {
		var batch *table.Table
		batch, err = readTable(g.path, table.ReadTable)
		if err != nil {
			return 1
		}
		log.WithFields(log.Fields{
			"plot_name": g.name,
			"peak_type": g.peakType,
			"position":  g.position,
			"rows":      batch.Len(),
		}).Infof("appending %s", g.path)
		table.AppendGroup(combined, batch, g.name, g.peakType, g.position)
	}
	_, err = writeTable(*outputFilename, combined, stdout)
	if err != nil {
		return 1
	}
	return 0
}
