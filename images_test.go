// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/arvados/peakplot/table"
	"gopkg.in/check.v1"
)

type imagesSuite struct{}

var _ = check.Suite(&imagesSuite{})

const testTagged = "feature_id\timage\tchr\tTags\n" +
	"chr1_100_200\tchr1_100_200.png\tchr1\tpeak\n" +
	"chr1_300_400\tchr1_300_400.png\tchr1\tnull\n" +
	"chr2_10_20\tchr2_10_20.png\tchr2\t\n" +
	"chr2_50_90\tchr2_50_90.png\tchr2\tpeak\n"

func (s *imagesSuite) TestImageStem(c *check.C) {
	c.Check(imageStem("chr1_1_2.png"), check.Equals, "chr1_1_2")
	c.Check(imageStem("chr1_1_2.jpg"), check.Equals, "chr1_1_2")
	c.Check(imageStem(".png"), check.Equals, ".png")
}

func (s *imagesSuite) TestSymlinkImages(c *check.C) {
	tmpdir := c.MkDir()
	src := tmpdir + "/out"
	dst := tmpdir + "/training_dataset"
	tagged := tmpdir + "/tagged.tsv"
	c.Assert(os.Mkdir(src, 0777), check.IsNil)
	c.Assert(ioutil.WriteFile(tagged, []byte(testTagged), 0666), check.IsNil)

	var stdout, stderr bytes.Buffer
	exited := (&symlinkImages{}).RunCommand("peakplot symlink-images", []string{"-i", tagged, "-src", src, "-dst", dst, "-j", "2"}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	c.Check(stdout.String(), check.Equals, "3 symlinks created\n")

	var links []string
	err := filepath.Walk(dst, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.Mode()&os.ModeSymlink != 0 {
			rel, _ := filepath.Rel(dst, path)
			links = append(links, rel)
		}
		return err
	})
	c.Assert(err, check.IsNil)
	sort.Strings(links)
	c.Check(links, check.DeepEquals, []string{
		"null/chr1_300_400.jpg",
		"peak/chr1_100_200.jpg",
		"peak/chr2_50_90.jpg",
	})
	target, err := os.Readlink(dst + "/peak/chr1_100_200.jpg")
	c.Check(err, check.IsNil)
	c.Check(target, check.Equals, src+"/chr1_100_200.jpg")

	// Links exist now.
	stderr.Reset()
	exited = (&symlinkImages{}).RunCommand("peakplot symlink-images", []string{"-i", tagged, "-src", src, "-dst", dst}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?s).*file exists.*`)

	exited = (&symlinkImages{}).RunCommand("peakplot symlink-images", []string{"-i", tagged, "-src", src, "-dst", dst, "-force"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 0)
}

func (s *imagesSuite) TestSymlinkImagesUsage(c *check.C) {
	var stdout, stderr bytes.Buffer
	exited := (&symlinkImages{}).RunCommand("peakplot symlink-images", []string{"-i", "x.tsv"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)

	tmpdir := c.MkDir()
	t := mustReadPeaks(c, testTagged)
	_, err := linkImages(t, tmpdir, tmpdir, "image", "Group", 1, false)
	c.Check(err, check.ErrorMatches, `no "Group" column in tagged table`)
}

func (s *imagesSuite) TestFilterTrained(c *check.C) {
	tmpdir := c.MkDir()
	for _, fnm := range []string{"null/chr1_300_400.jpg", "peak/chr1_100_200.jpg", "peak/subdir/chr2_50_90.jpg"} {
		c.Assert(os.MkdirAll(filepath.Dir(tmpdir+"/"+fnm), 0777), check.IsNil)
		c.Assert(ioutil.WriteFile(tmpdir+"/"+fnm, nil, 0666), check.IsNil)
	}
	peaksFile := tmpdir + "/peaks.tsv"
	c.Assert(ioutil.WriteFile(peaksFile, []byte(testPeaks), 0666), check.IsNil)

	var stdout, stderr bytes.Buffer
	exited := (&filterTrained{}).RunCommand("peakplot filter-trained", []string{"-i", peaksFile, tmpdir + "/null", tmpdir + "/peak"}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	t := mustReadPeaks(c, stdout.String())
	// Images in subdirectories of a training directory don't count.
	c.Check(t.Values(table.FeatureIDColumn), check.DeepEquals, []string{"chr2_10_20", "chr2_50_90"})
	c.Check(t.Header, check.DeepEquals, mustReadPeaks(c, testPeaks).Header)

	exited = (&filterTrained{}).RunCommand("peakplot filter-trained", []string{"-i", peaksFile, tmpdir + "/nonexistent"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 1)
	exited = (&filterTrained{}).RunCommand("peakplot filter-trained", []string{"-i", peaksFile}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
}

func (s *imagesSuite) TestAppendGroups(c *check.C) {
	tmpdir := c.MkDir()
	group1 := tmpdir + "/g1.tsv"
	group2 := tmpdir + "/g2.tsv"
	c.Assert(ioutil.WriteFile(group1, []byte(testPeaks), 0666), check.IsNil)
	c.Assert(ioutil.WriteFile(group2, []byte("feature_id\tFDR\nchrX_1_2\t0.5\n"), 0666), check.IsNil)
	out := tmpdir + "/combined.tsv"

	var stdout, stderr bytes.Buffer
	exited := (&appendGroups{}).RunCommand("peakplot append-groups", []string{"-o", out, "ctcf:peak:upstream:" + group1, "random:null::" + group2}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	f, err := os.Open(out)
	c.Assert(err, check.IsNil)
	defer f.Close()
	t, err := table.ReadPeaks(f, out)
	c.Assert(err, check.IsNil)
	c.Check(t.Header, check.DeepEquals, table.GroupHeader)
	c.Check(t.Len(), check.Equals, 5)
	c.Check(t.Values("plot_name"), check.DeepEquals, []string{"ctcf", "ctcf", "ctcf", "ctcf", "random"})
	c.Check(t.Values("position"), check.DeepEquals, []string{"upstream", "upstream", "upstream", "upstream", ""})
	c.Check(t.Values("FDR")[4], check.Equals, "0.5")

	exited = (&appendGroups{}).RunCommand("peakplot append-groups", []string{"-o", out, "ctcf:peak:" + group1}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
	c.Check(stderr.String(), check.Matches, `(?s).*expected name:peak_type:position:file.*`)
}

func (s *imagesSuite) TestAppendGroupsKeepsRepeatedIDs(c *check.C) {
	tmpdir := c.MkDir()
	batch := tmpdir + "/a.tsv"
	c.Assert(ioutil.WriteFile(batch, []byte("feature_id\tFDR\np1\t0.1\np1\t0.2\np2\t0.3\n"), 0666), check.IsNil)

	var stdout, stderr bytes.Buffer
	exited := (&appendGroups{}).RunCommand("peakplot append-groups", []string{"-o", "-", "g:high:top:" + batch, "h:low::" + batch}, nil, &stdout, &stderr)
	c.Assert(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))
	t, err := table.ReadTable(&stdout, "combined")
	c.Assert(err, check.IsNil)
	c.Check(t.Len(), check.Equals, 6)
	c.Check(t.Values(table.FeatureIDColumn), check.DeepEquals, []string{"p1", "p1", "p2", "p1", "p1", "p2"})
	c.Check(t.Values("FDR"), check.DeepEquals, []string{"0.1", "0.2", "0.3", "0.1", "0.2", "0.3"})
	c.Check(t.Values("plot_name"), check.DeepEquals, []string{"g", "g", "g", "h", "h", "h"})
}

func (s *imagesSuite) TestThrottle(c *check.C) {
	thr := throttle{Max: 3}
	results := make([]int, 20)
	for i := range results {
		i := i
		thr.Go(func() error {
			results[i] = i * i
			return nil
		})
	}
	c.Check(thr.Wait(), check.IsNil)
	for i, v := range results {
		c.Check(v, check.Equals, i*i)
	}

	serial := &throttle{Max: 1}
	serial.Go(func() error { return os.ErrExist })
	serial.Go(func() error { return nil })
	c.Check(serial.Wait(), check.Equals, os.ErrExist)
}
