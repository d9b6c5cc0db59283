// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package peakplot

import (
	"math"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// tsne computes an exact (O(n^2) per iteration) 2-dimensional t-SNE
// embedding. The result depends only on the input and Seed.
type tsne struct {
	Perplexity   float64
	Iterations   int
	Seed         uint64
	LearningRate float64 // default 200
}

const (
	tsneExaggeration      = 12
	tsneExaggerationIters = 250
	tsneMinGain           = 0.01
)

// Embed returns a rows x 2 embedding of the rows of data.
func (t *tsne) Embed(data *mat.Dense) *mat.Dense {
	n, _ := data.Dims()
	perplexity := t.Perplexity
	if limit := float64(n-1) / 3; perplexity > limit {
		perplexity = math.Max(limit, 1)
		log.Infof("TSNE: reducing perplexity to %v for %d rows", perplexity, n)
	}
	lr := t.LearningRate
	if lr <= 0 {
		lr = 200
	}
	p := jointProbabilities(data, perplexity)

	rnd := rand.New(rand.NewSource(t.Seed))
	y := make([]float64, n*2)
	for i := range y {
		y[i] = rnd.NormFloat64() * 1e-4
	}
	update := make([]float64, n*2)
	gains := make([]float64, n*2)
	for i := range gains {
		gains[i] = 1
	}
	num := make([]float64, n*n)
	grad := make([]float64, n*2)

	for iter := 0; iter < t.Iterations; iter++ {
		exaggeration, momentum := 1.0, 0.8
		if iter < tsneExaggerationIters {
			exaggeration, momentum = tsneExaggeration, 0.5
		}

		// Student-t kernel between embedded points.
		sumQ := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx, dy := y[i*2]-y[j*2], y[i*2+1]-y[j*2+1]
				q := 1 / (1 + dx*dx + dy*dy)
				num[i*n+j], num[j*n+i] = q, q
				sumQ += 2 * q
			}
		}
		if sumQ == 0 {
			sumQ = 1e-12
		}

		for i := 0; i < n; i++ {
			gx, gy := 0.0, 0.0
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				q := num[i*n+j]
				mult := (exaggeration*p[i*n+j] - q/sumQ) * q
				gx += mult * (y[i*2] - y[j*2])
				gy += mult * (y[i*2+1] - y[j*2+1])
			}
			grad[i*2], grad[i*2+1] = 4*gx, 4*gy
		}

		for k := range y {
			if (grad[k] > 0) != (update[k] > 0) {
				gains[k] += 0.2
			} else {
				gains[k] *= 0.8
			}
			if gains[k] < tsneMinGain {
				gains[k] = tsneMinGain
			}
			update[k] = momentum*update[k] - lr*gains[k]*grad[k]
			y[k] += update[k]
		}

		var mx, my float64
		for i := 0; i < n; i++ {
			mx += y[i*2]
			my += y[i*2+1]
		}
		mx, my = mx/float64(n), my/float64(n)
		for i := 0; i < n; i++ {
			y[i*2] -= mx
			y[i*2+1] -= my
		}

		if (iter+1)%250 == 0 || iter+1 == t.Iterations {
			log.Debugf("TSNE iteration %d: KL divergence %.4f", iter+1, klDivergence(p, num, sumQ, n))
		}
	}
	return mat.NewDense(n, 2, y)
}

// jointProbabilities returns the symmetrized input affinities P as a
// row-major n x n slice, with each row's Gaussian bandwidth chosen
// to match the given perplexity.
func jointProbabilities(data *mat.Dense, perplexity float64) []float64 {
	n, _ := data.Dims()
	dist := make([]float64, n*n)
	for i := 0; i < n; i++ {
		ri := data.RawRowView(i)
		for j := i + 1; j < n; j++ {
			rj := data.RawRowView(j)
			d := 0.0
			for k := range ri {
				diff := ri[k] - rj[k]
				d += diff * diff
			}
			dist[i*n+j], dist[j*n+i] = d, d
		}
	}

	cond := make([]float64, n*n)
	target := math.Log(perplexity)
	for i := 0; i < n; i++ {
		conditionalRow(dist[i*n:(i+1)*n], i, target, cond[i*n:(i+1)*n])
	}

	p := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			v := (cond[i*n+j] + cond[j*n+i]) / float64(2*n)
			p[i*n+j] = math.Max(v, 1e-12)
		}
	}
	return p
}

// conditionalRow fills out with p(j|i), using binary search on the
// Gaussian precision until the row's entropy (in nats) matches
// target.
func conditionalRow(dist []float64, i int, target float64, out []float64) {
	dmin := math.Inf(1)
	for j, d := range dist {
		if j != i && d < dmin {
			dmin = d
		}
	}
	beta, betaMin, betaMax := 1.0, math.Inf(-1), math.Inf(1)
	for try := 0; try < 100; try++ {
		sumP, sumDP := 0.0, 0.0
		for j, d := range dist {
			if j == i {
				out[j] = 0
				continue
			}
			// Shifting by dmin leaves the normalized
			// distribution unchanged and keeps sumP >= 1.
			pj := math.Exp(-(d - dmin) * beta)
			out[j] = pj
			sumP += pj
			sumDP += (d - dmin) * pj
		}
		for j := range out {
			out[j] /= sumP
		}
		h := math.Log(sumP) + beta*sumDP/sumP
		diff := h - target
		if math.Abs(diff) < 1e-5 {
			return
		}
		if diff > 0 {
			betaMin = beta
			if math.IsInf(betaMax, 1) {
				beta *= 2
			} else {
				beta = (beta + betaMax) / 2
			}
		} else {
			betaMax = beta
			if math.IsInf(betaMin, -1) {
				beta /= 2
			} else {
				beta = (beta + betaMin) / 2
			}
		}
	}
}

func klDivergence(p, num []float64, sumQ float64, n int) float64 {
	kl := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			q := math.Max(num[i*n+j]/sumQ, 1e-12)
			kl += p[i*n+j] * math.Log(p[i*n+j]/q)
		}
	}
	return kl
}
