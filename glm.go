// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"io"
	"log"
	"math"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var glmConfig = &glm.Config{
	Family:         glm.NewFamily(glm.BinomialFamily),
	FitMethod:      "IRLS",
	ConcurrentIRLS: 1000,
	Log:            log.New(io.Discard, "", 0),
}

// standardize returns (a - mean) / stddev. ok is false if a is
// constant.
func standardize(a []float64) (out []float64, ok bool) {
	mean, std := stat.MeanStdDev(a, nil)
	if std == 0 || math.IsNaN(std) {
		return nil, false
	}
	out = make([]float64, len(a))
	for i, x := range a {
		out[i] = (x - mean) / std
	}
	return out, true
}

// glmPvalueFunc returns a function that computes the likelihood ratio
// p-value of a logistic regression of outcome on a signal series,
// against the intercept-only model.
func glmPvalueFunc(outcome []bool) func(signal []float64) float64 {
	y := make([]statmodel.Dtype, len(outcome))
	constants := make([]statmodel.Dtype, len(outcome))
	for i, isCase := range outcome {
		if isCase {
			y[i] = 1
		}
		constants[i] = 1
	}
	nullModel, err := glm.NewGLM(statmodel.NewDataset([][]statmodel.Dtype{y, constants}, []string{"outcome", "constants"}), "outcome", []string{"constants"}, glmConfig)
	if err != nil {
		log.Printf("%s", err)
		return func([]float64) float64 { return math.NaN() }
	}
	logNull := nullModel.Fit().LogLike()

	return func(signal []float64) (p float64) {
		defer func() {
			if recover() != nil {
				// typically "matrix singular or near-singular"
				p = math.NaN()
			}
		}()
		x, ok := standardize(signal)
		if !ok {
			return 1
		}
		names := []string{"outcome", "constants", "signal"}
		dataset := statmodel.NewDataset([][]statmodel.Dtype{y, constants, x}, names)
		model, err := glm.NewGLM(dataset, "outcome", names[1:], glmConfig)
		if err != nil {
			return math.NaN()
		}
		logFull := model.Fit().LogLike()
		dist := distuv.ChiSquared{K: 1}
		return dist.Survival(-2 * (logNull - logFull))
	}
}
