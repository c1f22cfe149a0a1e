package estimation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SampleCovariance is the unbiased sample covariance of returns, annualised.
func SampleCovariance(r *ReturnSeries, frequency int) (*mat.SymDense, error) {
	rows, _ := r.Values.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("insufficient data: need at least 2 returns, got %d", rows)
	}
	cov := &mat.SymDense{}
	stat.CovarianceMatrix(cov, r.Values, nil)
	cov.ScaleSym(float64(frequency), cov)
	return cov, nil
}

// LedoitWolf shrinks the maximum-likelihood covariance of returns toward a
// scaled identity mu*I, mu being the mean variance, with the optimal
// Ledoit-Wolf intensity. The result is annualised; the intensity is in [0, 1].
func LedoitWolf(r *ReturnSeries, frequency int) (*mat.SymDense, float64, error) {
	n, p := r.Values.Dims()
	if n < 2 {
		return nil, 0, fmt.Errorf("insufficient data: need at least 2 returns, got %d", n)
	}
	if p == 0 {
		return nil, 0, fmt.Errorf("no assets")
	}

	// Centre each column
	x := mat.NewDense(n, p, nil)
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, r.Values)
		mean := stat.Mean(col, nil)
		for i := range col {
			x.Set(i, j, col[i]-mean)
		}
	}

	// emp = X'X / n
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	emp := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			emp.SetSym(i, j, xtx.At(i, j)/float64(n))
		}
	}

	trace := mat.Trace(emp)
	mu := trace / float64(p)

	shrinkage := 0.0
	if p > 1 {
		x2 := mat.NewDense(n, p, nil)
		x2.Apply(func(_, _ int, v float64) float64 { return v * v }, x)

		var x2tx2 mat.Dense
		x2tx2.Mul(x2.T(), x2)

		var betaSum, deltaSum float64
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				betaSum += x2tx2.At(i, j)
				v := xtx.At(i, j)
				deltaSum += v * v
			}
		}
		deltaSum /= float64(n) * float64(n)

		beta := (betaSum/float64(n) - deltaSum) / (float64(p) * float64(n))
		delta := (deltaSum - 2*mu*trace + float64(p)*mu*mu) / float64(p)
		beta = math.Min(beta, delta)

		if beta > 0 && delta > 0 {
			shrinkage = beta / delta
		}
	}

	shrunk := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := (1 - shrinkage) * emp.At(i, j)
			if i == j {
				v += shrinkage * mu
			}
			shrunk.SetSym(i, j, v*float64(frequency))
		}
	}

	return shrunk, shrinkage, nil
}

// Correlation is the Pearson correlation matrix of returns. A column with
// zero variance has no defined correlation; its entries are NaN.
func Correlation(r *ReturnSeries) (*mat.SymDense, error) {
	rows, _ := r.Values.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("insufficient data: need at least 2 returns, got %d", rows)
	}
	corr := &mat.SymDense{}
	stat.CorrelationMatrix(corr, r.Values, nil)
	return corr, nil
}

// EnsurePSD clips negative eigenvalues to zero and rebuilds the matrix.
// Returns whether a repair was needed.
func EnsurePSD(cov *mat.SymDense) (*mat.SymDense, bool, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, false, fmt.Errorf("eigendecomposition failed")
	}
	values := eig.Values(nil)

	repaired := false
	for i, v := range values {
		if v < 0 {
			values[i] = 0
			repaired = true
		}
	}
	if !repaired {
		return cov, false, nil
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	n := len(values)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			for k := 0; k < n; k++ {
				s += vecs.At(i, k) * values[k] * vecs.At(j, k)
			}
			out.SetSym(i, j, s)
		}
	}
	return out, true, nil
}

// SymToRows flattens a symmetric matrix for serialisation.
func SymToRows(m mat.Symmetric) [][]float64 {
	n := m.SymmetricDim()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// RowsToSym is the inverse of SymToRows. The upper triangle wins.
func RowsToSym(rows [][]float64) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("empty matrix")
	}
	out := mat.NewSymDense(n, nil)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d entries, expected %d", i, len(row), n)
		}
		for j := i; j < n; j++ {
			out.SetSym(i, j, row[j])
		}
	}
	return out, nil
}
