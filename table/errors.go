// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package table

import (
	"errors"
	"fmt"
	"io/fs"
)

// NotFoundError reports a missing input file. It unwraps to the
// underlying open error, so errors.Is(err, fs.ErrNotExist) holds.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no such file", e.Path)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err == nil {
		return fs.ErrNotExist
	}
	return e.Err
}

// CheckNotFound returns a *NotFoundError if err indicates that path
// does not exist, otherwise err unchanged.
func CheckNotFound(path string, err error) error {
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return &NotFoundError{Path: path, Err: err}
	}
	return err
}

// ParseError reports input whose column structure does not match
// what the loader expects.
type ParseError struct {
	Name string
	Line int // 1-based, 0 if not line specific
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", e.Name, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}
