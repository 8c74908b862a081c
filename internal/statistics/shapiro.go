package statistics

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Royston (1995) polynomial approximations for the Shapiro-Wilk W test
var (
	swG  = []float64{-2.273, 0.459}
	swC1 = []float64{0, 0.221157, -0.147981, -2.07119, 4.434685, -2.706056}
	swC2 = []float64{0, 0.042981, -0.293762, -1.752461, 5.682633, -3.582633}
	swC3 = []float64{0.544, -0.39978, 0.025054, -6.714e-4}
	swC4 = []float64{1.3822, -0.77857, 0.062767, -0.0020322}
	swC5 = []float64{-1.5861, -0.31082, -0.083751, 0.0038915}
	swC6 = []float64{-0.4803, -0.082676, 0.0030302}
)

const (
	shapiroMinN = 3
	shapiroMaxN = 5000
)

// poly evaluates c[0] + c[1]x + c[2]x^2 + ...
func poly(c []float64, x float64) float64 {
	result := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		result = result*x + c[i]
	}
	return result
}

// shapiroWilk returns W and its p-value for 3 <= n <= 5000 sorted values
// with a non-zero range
func shapiroWilk(sorted []float64) (w, p float64) {
	n := len(sorted)
	an := float64(n)
	half := n / 2

	// a[1..half] holds the positive coefficients of the upper half
	a := make([]float64, half+1)
	if n == 3 {
		a[1] = math.Sqrt(0.5)
	} else {
		m := make([]float64, half+1)
		an25 := an + 0.25
		summ2 := 0.0
		for i := 1; i <= half; i++ {
			m[i] = distuv.UnitNormal.Quantile((float64(i) - 0.375) / an25)
			summ2 += m[i] * m[i]
		}
		summ2 *= 2
		ssumm2 := math.Sqrt(summ2)
		rsn := 1 / math.Sqrt(an)
		a1 := poly(swC1, rsn) - m[1]/ssumm2

		first := 2
		var fac float64
		if n > 5 {
			first = 3
			a2 := -m[2]/ssumm2 + poly(swC2, rsn)
			fac = math.Sqrt((summ2 - 2*m[1]*m[1] - 2*m[2]*m[2]) / (1 - 2*a1*a1 - 2*a2*a2))
			a[2] = a2
		} else {
			fac = math.Sqrt((summ2 - 2*m[1]*m[1]) / (1 - 2*a1*a1))
		}
		a[1] = a1
		for i := first; i <= half; i++ {
			a[i] = -m[i] / fac
		}
	}

	// full antisymmetric coefficient vector over the ascending sample
	coef := make([]float64, n)
	for i := 1; i <= half; i++ {
		coef[i-1] = -a[i]
		coef[n-i] = a[i]
	}

	rng := sorted[n-1] - sorted[0]
	var meanA, meanX float64
	for i := range sorted {
		meanA += coef[i]
		meanX += sorted[i] / rng
	}
	meanA /= an
	meanX /= an

	var ssa, ssx, sax float64
	for i := range sorted {
		da := coef[i] - meanA
		dx := sorted[i]/rng - meanX
		ssa += da * da
		ssx += dx * dx
		sax += da * dx
	}

	// 1 - W computed directly to keep precision when W is close to 1
	root := math.Sqrt(ssa * ssx)
	w1 := math.Max(0, (root-sax)*(root+sax)/(ssa*ssx))
	w = 1 - w1

	if n == 3 {
		const sixOverPi = 6 / math.Pi
		p = sixOverPi * (math.Asin(math.Sqrt(w)) - math.Pi/3)
		return w, math.Max(0, math.Min(1, p))
	}

	if w1 == 0 {
		return w, 1
	}
	y := math.Log(w1)
	var mean, sd float64
	if n <= 11 {
		gamma := poly(swG, an)
		if y >= gamma {
			return w, 1e-99
		}
		y = -math.Log(gamma - y)
		mean = poly(swC3, an)
		sd = math.Exp(poly(swC4, an))
	} else {
		lnN := math.Log(an)
		mean = poly(swC5, lnN)
		sd = math.Exp(poly(swC6, lnN))
	}

	p = distuv.Normal{Mu: mean, Sigma: sd}.Survival(y)
	return w, p
}

// kolmogorovSmirnov tests sorted values against a normal distribution with
// the sample mean and standard deviation. The p-value uses the asymptotic
// Kolmogorov distribution with Stephens' small sample correction.
func kolmogorovSmirnov(sorted []float64, mean, std float64) (d, p float64) {
	n := float64(len(sorted))
	dist := distuv.Normal{Mu: mean, Sigma: std}

	for i, x := range sorted {
		cdf := dist.CDF(x)
		d = math.Max(d, math.Max(float64(i+1)/n-cdf, cdf-float64(i)/n))
	}

	sqrtN := math.Sqrt(n)
	lambda := (sqrtN + 0.12 + 0.11/sqrtN) * d
	return d, kolmogorovQ(lambda)
}

// kolmogorovQ is the survival function of the Kolmogorov distribution
func kolmogorovQ(lambda float64) float64 {
	if lambda < 1e-3 {
		return 1
	}
	const eps1, eps2 = 1e-3, 1e-8

	sum, prev := 0.0, 0.0
	factor := 2.0
	a2 := -2 * lambda * lambda
	for k := 1; k <= 100; k++ {
		term := factor * math.Exp(a2*float64(k*k))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return math.Max(0, math.Min(1, sum))
		}
		factor = -factor
		prev = math.Abs(term)
	}
	// series did not converge: lambda is tiny and the fit is perfect
	return 1
}
