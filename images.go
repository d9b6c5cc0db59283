// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/arvados/peakplot/table"
	log "github.com/sirupsen/logrus"
)

// imageStem returns an image file name without its 4-character
// extension (".png", ".jpg").
func imageStem(name string) string {
	if len(name) <= 4 {
		return name
	}
	return name[:len(name)-4]
}

type symlinkImages struct{}

func (cmd *symlinkImages) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "", "tagged metadata table `file` (TSV)")
	srcDir := flags.String("src", "", "`directory` containing the peak images")
	dstDir := flags.String("dst", "", "training dataset `directory` (one subdirectory per tag)")
	tagColumn := flags.String("tag-column", tagsColumn, "`name` of tag column")
	imageColumn := flags.String("image-column", "image", "`name` of image file name column")
	threads := flags.Int("j", 8, "max number of concurrent filesystem operations")
	force := flags.Bool("force", false, "replace existing links")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *inputFilename == "" || *srcDir == "" || *dstDir == "" {
		err = errors.New("-i, -src and -dst are required")
		return 2
	}

	tagged, err := readTable(*inputFilename, table.ReadPeaks)
	if err != nil {
		return 1
	}
	n, err := linkImages(tagged, *srcDir, *dstDir, *imageColumn, *tagColumn, *threads, *force)
	if err != nil {
		return 1
	}
	fmt.Fprintf(stdout, "%d symlinks created\n", n)
	return 0
}

// linkImages creates dst/<tag>/<stem>.jpg -> src/<stem>.jpg for each
// row of tagged, and returns the number of links created. Rows with
// an empty tag are skipped.
func linkImages(tagged *table.Table, src, dst, imageColumn, tagColumn string, threads int, force bool) (int, error) {
	imgcol := tagged.Column(imageColumn)
	if imgcol < 0 {
		return 0, fmt.Errorf("no %q column in tagged table", imageColumn)
	}
	tagcol := tagged.Column(tagColumn)
	if tagcol < 0 {
		return 0, fmt.Errorf("no %q column in tagged table", tagColumn)
	}
	src, err := filepath.Abs(src)
	if err != nil {
		return 0, err
	}

	tags := map[string]bool{}
	for _, row := range tagged.Rows {
		if row[tagcol] != "" {
			tags[row[tagcol]] = true
		}
	}
	tagdirs := make([]string, 0, len(tags))
	for tag := range tags {
		tagdirs = append(tagdirs, tag)
	}
	sort.Strings(tagdirs)
	for _, tag := range tagdirs {
		err := os.MkdirAll(filepath.Join(dst, tag), 0777)
		if err != nil {
			return 0, err
		}
	}

	thr := throttle{Max: threads}
	created := 0
	skipped := 0
	for _, row := range tagged.Rows {
		tag := row[tagcol]
		if tag == "" {
			skipped++
			continue
		}
		jpg := imageStem(row[imgcol]) + ".jpg"
		target := filepath.Join(src, jpg)
		link := filepath.Join(dst, tag, jpg)
		created++
		thr.Go(func() error {
			if force {
				err := os.Remove(link)
				if err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			return os.Symlink(target, link)
		})
	}
	err = thr.Wait()
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		log.Warnf("skipped %d rows with empty %s", skipped, tagColumn)
	}
	log.WithFields(log.Fields{
		"links": created,
		"tags":  len(tagdirs),
	}).Infof("created symlinks in %s", dst)
	return created, nil
}

type filterTrained struct{}

func (cmd *filterTrained) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s [options] training-dir ...\n", prog)
		flags.PrintDefaults()
	}
	inputFilename := flags.String("i", "", "peak table `file` (TSV)")
	outputFilename := flags.String("o", "-", "output `file`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *inputFilename == "" || flags.NArg() == 0 {
		err = errors.New("-i and at least one training directory are required")
		return 2
	}

	peaks, err := readTable(*inputFilename, table.ReadPeaks)
	if err != nil {
		return 1
	}
	trained, err := trainedIDs(flags.Args())
	if err != nil {
		return 1
	}
	idcol := peaks.Column(table.FeatureIDColumn)
	dropped := peaks.Filter(func(row []string) bool { return !trained[row[idcol]] })
	log.Infof("dropped %d already-trained peaks, %d remain", dropped, peaks.Len())
	_, err = writeTable(*outputFilename, peaks, stdout)
	if err != nil {
		return 1
	}
	return 0
}

// trainedIDs returns the set of image stems found in the given
// directories.
func trainedIDs(dirs []string) (map[string]bool, error) {
	ids := map[string]bool{}
	for _, dir := range dirs {
		ents, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, ent := range ents {
			if ent.IsDir() {
				continue
			}
			ids[imageStem(ent.Name())] = true
		}
	}
	return ids, nil
}
