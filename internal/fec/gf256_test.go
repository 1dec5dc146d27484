package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGF256MulDivInverse(t *testing.T) {
	gf := newGF256(0x187)
	for a := 1; a < 256; a++ {
		inv := gf.inv(a)
		assert.Equal(t, 1, gf.mul(a, inv))
	}
}

func TestGF256MulByZero(t *testing.T) {
	gf := newGF256(0x187)
	assert.Equal(t, 0, gf.mul(0, 42))
	assert.Equal(t, 0, gf.mul(42, 0))
}

func TestGF256DivIdentity(t *testing.T) {
	gf := newGF256(0x187)
	for a := 1; a < 256; a++ {
		assert.Equal(t, 1, gf.div(a, a))
	}
}
