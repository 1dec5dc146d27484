package fec

// codec is a byte-oriented Reed-Solomon decoder over GF(256), generic
// over (gfpoly, fcr, prim, nroots, pad) the way libfec's init_rs_char /
// decode_rs_char pair is, since the original FEC wraps exactly that
// library (see fec.cc in the recovered source) and no third-party
// GF(256) RS package appears anywhere in the retrieved example
// corpus — this is the one core component implemented against the
// standard library rather than an imported codec; see DESIGN.md.
type codec struct {
	gf     *gf256
	fcr    int
	prim   int
	nroots int
	pad    int
	nn     int // 255
	gen    []int
}

func newCodec(gfpoly, fcr, prim, nroots, pad int) *codec {
	c := &codec{
		gf:     newGF256(gfpoly),
		fcr:    fcr,
		prim:   prim,
		nroots: nroots,
		pad:    pad,
		nn:     255,
	}
	c.gen = buildGenPoly(c.gf, fcr, prim, nroots)
	return c
}

// codewordLen is the transmitted length (data+parity) for a shortened
// code: nn - pad.
func (c *codec) codewordLen() int {
	return c.nn - c.pad
}

// dataLen is the message-byte count once parity is stripped.
func (c *codec) dataLen() int {
	return c.codewordLen() - c.nroots
}

// decode corrects data in place (length must equal codewordLen()) and
// returns the number of corrected symbols, or -1 if the codeword is
// uncorrectable. Mirrors decode_rs_char's "no_eras=0" case: no erasure
// positions are supplied.
func (c *codec) decode(data []byte) int {
	n := c.codewordLen()
	if len(data) != n {
		return -1
	}
	gf := c.gf

	// Syndromes: S[j] = codeword(alpha^(fcr+j*prim)) for j=0..nroots-1,
	// evaluated via Horner over the n transmitted symbols (data[0] at
	// the highest degree). This already matches the n-1-i position
	// convention chienSearch/errorEvaluator use below; the implicit
	// leading zero symbols of a shortened code don't shift anything
	// since they contribute nothing to the Horner sum.
	syn := make([]int, c.nroots)
	synZero := true
	for j := 0; j < c.nroots; j++ {
		rootExp := (c.fcr + j*c.prim) % gf.nn
		root := gf.expTo[rootExp]
		acc := int(data[0])
		for i := 1; i < n; i++ {
			acc = gf.mul(acc, root) ^ int(data[i])
		}
		syn[j] = acc
		if acc != 0 {
			synZero = false
		}
	}
	if synZero {
		return 0
	}

	lambda, l := berlekampMassey(gf, syn, c.nroots)
	if l == 0 || l > c.nroots/2 {
		return -1
	}

	roots, locs := chienSearch(gf, lambda, l, n, c.prim)
	if len(roots) != l {
		return -1
	}

	omega := errorEvaluator(gf, syn, lambda, l, c.nroots)

	for k := 0; k < l; k++ {
		// roots[k] is X_k^-1, the point at which lambda (and therefore
		// omega and lambda') must be evaluated per Forney's algorithm.
		xkInv := roots[k]
		xk := gf.inv(xkInv)
		numer := polyEval(gf, omega, xkInv)
		denom := formalDerivativeEval(gf, lambda, l, xkInv)
		if denom == 0 {
			return -1
		}
		scaleExp := ((gf.logTo[xk] * (1 - c.fcr)) % gf.nn + gf.nn) % gf.nn
		scale := gf.expTo[scaleExp]
		errVal := gf.mul(scale, gf.div(numer, denom))
		pos := locs[k]
		if pos < 0 || pos >= n {
			return -1
		}
		data[pos] ^= byte(errVal)
	}

	return l
}

// berlekampMassey computes the error locator polynomial from the
// syndrome sequence. Returns (lambda, degree).
func berlekampMassey(gf *gf256, syn []int, nroots int) ([]int, int) {
	c := make([]int, nroots+1)
	b := make([]int, nroots+1)
	c[0] = 1
	b[0] = 1
	l := 0
	m := 1
	bCoef := 1

	for n := 0; n < nroots; n++ {
		delta := syn[n]
		for i := 1; i <= l; i++ {
			delta ^= gf.mul(c[i], syn[n-i])
		}
		if delta == 0 {
			m++
			continue
		}
		t := make([]int, len(c))
		copy(t, c)

		coef := gf.div(delta, bCoef)
		for i := 0; i <= nroots-m; i++ {
			if b[i] != 0 {
				c[i+m] ^= gf.mul(coef, b[i])
			}
		}
		if 2*l <= n {
			l = n + 1 - l
			copy(b, t)
			bCoef = delta
			m = 1
		} else {
			m++
		}
	}
	return c, l
}

// chienSearch finds the roots of lambda(x) by brute-force evaluation
// over all nonzero field elements, returning the field-element roots
// and the corresponding zero-based codeword positions they correct
// (position i has locator alpha^{-i*prim}, i.e. root = alpha^{i*prim}
// inverted).
func chienSearch(gf *gf256, lambda []int, l, n, prim int) (roots []int, positions []int) {
	for i := 0; i < n; i++ {
		// locator for position i (0 = last/least-significant symbol)
		exp := (i * prim) % gf.nn
		x := gf.expTo[exp]
		inv := gf.inv(x)
		if polyEval(gf, lambda[:l+1], inv) == 0 {
			roots = append(roots, inv)
			positions = append(positions, n-1-i)
		}
	}
	return roots, positions
}

func polyEval(gf *gf256, poly []int, x int) int {
	acc := 0
	xp := 1
	for _, coef := range poly {
		acc ^= gf.mul(coef, xp)
		xp = gf.mul(xp, x)
	}
	return acc
}

// errorEvaluator computes omega(x) = [S(x)*lambda(x)] mod x^nroots.
func errorEvaluator(gf *gf256, syn []int, lambda []int, l, nroots int) []int {
	omega := make([]int, nroots)
	for i := 0; i < nroots; i++ {
		acc := 0
		for j := 0; j <= l && j <= i; j++ {
			acc ^= gf.mul(lambda[j], syn[i-j])
		}
		omega[i] = acc
	}
	return omega
}

func formalDerivativeEval(gf *gf256, lambda []int, l int, x int) int {
	acc := 0
	xp := 1
	for i := 1; i <= l; i++ {
		if i%2 == 1 {
			acc ^= gf.mul(lambda[i], xp)
		}
		xp = gf.mul(xp, x)
	}
	return acc
}

// buildGenPoly constructs the monic generator polynomial
// prod_{i=0}^{nroots-1} (x + alpha^(fcr+i*prim)), coefficients ordered
// highest-degree first.
func buildGenPoly(gf *gf256, fcr, prim, nroots int) []int {
	poly := []int{1}
	for i := 0; i < nroots; i++ {
		root := gf.expTo[(fcr+i*prim)%gf.nn]
		poly = mulLinear(gf, poly, root)
	}
	return poly
}

// mulLinear multiplies poly (coeffs highest-degree first) by (x + r).
func mulLinear(gf *gf256, poly []int, r int) []int {
	out := make([]int, len(poly)+1)
	out[0] = poly[0]
	for i := 1; i < len(poly); i++ {
		out[i] = poly[i] ^ gf.mul(poly[i-1], r)
	}
	out[len(poly)] = gf.mul(poly[len(poly)-1], r)
	return out
}

// polyRemainder computes dividend mod divisor (divisor must be monic,
// coefficients highest-degree first).
func polyRemainder(gf *gf256, dividend []int, divisor []int) []int {
	rem := make([]int, len(dividend))
	copy(rem, dividend)
	for len(rem) >= len(divisor) {
		factor := rem[0]
		if factor != 0 {
			for i, dv := range divisor {
				rem[i] ^= gf.mul(factor, dv)
			}
		}
		rem = rem[1:]
	}
	return rem
}

// encode computes the systematic codeword for data (length
// dataLen()): data followed by nroots parity bytes such that the
// codeword's syndromes are all zero.
func (c *codec) encode(data []byte) []byte {
	dividend := make([]int, len(data)+c.nroots)
	for i, b := range data {
		dividend[i] = int(b)
	}
	remainder := polyRemainder(c.gf, dividend, c.gen)

	out := make([]byte, len(data)+c.nroots)
	copy(out, data)
	offset := c.nroots - len(remainder)
	for i, v := range remainder {
		out[len(data)+offset+i] = byte(v)
	}
	return out
}
