// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package healpix

import (
	"errors"
	"math"
	"testing"
)

func TestValidNside(t *testing.T) {
	for _, nside := range []int64{1, 2, 4, 64, 2048} {
		if err := ValidNside(nside); err != nil {
			t.Errorf("nside %d got %v expect nil", nside, err)
		}
	}
	for _, nside := range []int64{0, -1, 3, 12, 100} {
		if !errors.Is(ValidNside(nside), ErrInvalidNside) {
			t.Errorf("nside %d expect ErrInvalidNside", nside)
		}
	}
}

func TestParseOrder(t *testing.T) {
	for _, s := range []string{"RING", "ring", "Ring"} {
		o, err := ParseOrder(s)
		if err != nil || o != Ring {
			t.Errorf("%q got %v,%v expect Ring", s, o, err)
		}
	}
	for _, s := range []string{"NESTED", "nested", "NEST", "nest"} {
		o, err := ParseOrder(s)
		if err != nil || o != Nested {
			t.Errorf("%q got %v,%v expect Nested", s, o, err)
		}
	}
	if _, err := ParseOrder(""); !errors.Is(err, ErrMissingOrdering) {
		t.Errorf("empty ordering got %v expect ErrMissingOrdering", err)
	}
	if _, err := ParseOrder("spiral"); !errors.Is(err, ErrUnknownOrdering) {
		t.Errorf("unknown ordering got %v expect ErrUnknownOrdering", err)
	}
}

// pix -> ang -> pix must be the identity for every pixel
func TestPixAngRoundtrip(t *testing.T) {
	for _, nside := range []int64{1, 2, 4, 8, 16} {
		for _, order := range []Order{Ring, Nested} {
			for pix := int64(0); pix < Npix(nside); pix++ {
				theta, phi := PixToAng(nside, order, pix)
				if theta < 0 || theta > math.Pi {
					t.Fatalf("nside %d %s pix %d theta %f out of range", nside, order, pix, theta)
				}
				back := AngToPix(nside, order, theta, phi)
				if back != pix {
					t.Fatalf("nside %d %s pix %d roundtrips to %d", nside, order, pix, back)
				}
			}
		}
	}
}

// ring<->nest renumbering must be a bijection consistent with AngToPix
func TestRingNestConversion(t *testing.T) {
	for _, nside := range []int64{1, 4, 16} {
		seen := make([]bool, Npix(nside))
		for pix := int64(0); pix < Npix(nside); pix++ {
			nest := RingToNest(nside, pix)
			if nest < 0 || nest >= Npix(nside) {
				t.Fatalf("nside %d ring %d nest %d out of range", nside, pix, nest)
			}
			if seen[nest] {
				t.Fatalf("nside %d nest %d hit twice", nside, nest)
			}
			seen[nest] = true
			if NestToRing(nside, nest) != pix {
				t.Fatalf("nside %d ring %d nest %d does not roundtrip", nside, pix, nest)
			}

			theta, phi := PixToAng(nside, Ring, pix)
			if AngToPix(nside, Nested, theta, phi) != nest {
				t.Fatalf("nside %d pix %d nested AngToPix disagrees with RingToNest", nside, pix)
			}
		}
	}
}

func TestInterpWeights(t *testing.T) {
	for _, nside := range []int64{4, 16} {
		for _, order := range []Order{Ring, Nested} {
			for i := 0; i < 200; i++ {
				theta := math.Pi * float64(i+1) / 202
				phi := math.Mod(float64(i)*0.7, 2*math.Pi)
				pix, wgt := InterpPix(nside, order, theta, phi)
				sum := 0.0
				for j := 0; j < 4; j++ {
					if pix[j] < 0 || pix[j] >= Npix(nside) {
						t.Fatalf("nside %d theta %f phi %f pixel %d out of range", nside, theta, phi, pix[j])
					}
					if wgt[j] < -1e-12 {
						t.Fatalf("nside %d theta %f phi %f negative weight %f", nside, theta, phi, wgt[j])
					}
					sum += wgt[j]
				}
				if math.Abs(sum-1) > 1e-12 {
					t.Fatalf("nside %d theta %f phi %f weights sum to %f", nside, theta, phi, sum)
				}
			}
		}
	}
}

// interpolating a constant map must return the constant
func TestInterpConstant(t *testing.T) {
	nside := int64(8)
	data := make([]float32, Npix(nside))
	for i := range data {
		data[i] = 2.5
	}
	for i := 0; i < 100; i++ {
		theta := math.Pi * float64(i+1) / 102
		phi := float64(i) * 0.13
		v := InterpVal(data, nside, Ring, theta, phi)
		if math.Abs(v-2.5) > 1e-6 {
			t.Errorf("theta %f phi %f got %f expect 2.5", theta, phi, v)
		}
	}
}

func TestQueryDisc(t *testing.T) {
	nside := int64(16)

	// the full sphere
	all := QueryDisc(nside, Ring, 1.2, 0.3, math.Pi)
	if int64(len(all)) != Npix(nside) {
		t.Errorf("full sphere disc has %d pixels expect %d", len(all), Npix(nside))
	}

	// no disc
	if pix := QueryDisc(nside, Ring, 1.2, 0.3, 0); len(pix) != 0 {
		t.Errorf("empty disc has %d pixels expect 0", len(pix))
	}

	// pixel centers must lie within the radius plus the pixel diagonal
	theta0, phi0 := 0.8, 2.1
	radius := 0.3
	maxPixRad := 2.4 / float64(nside) // conservative bound on the pixel diagonal
	disc := QueryDisc(nside, Ring, theta0, phi0, radius)
	if len(disc) == 0 {
		t.Fatal("disc is empty")
	}
	for _, p := range disc {
		theta, phi := PixToAng(nside, Ring, p)
		if angDist(theta0, phi0, theta, phi) > radius+maxPixRad {
			t.Errorf("pixel %d lies outside the disc", p)
		}
	}
}

// growing discs must be nested, and the combined annuli must tile the
// outermost disc
func TestQueryDiscNested(t *testing.T) {
	nside := int64(16)
	theta0, phi0 := 1.3, 0.4
	radii := []float64{0.05, 0.15, 0.3, 0.5}

	var prev map[int64]bool
	prevLen := 0
	for _, r := range radii {
		disc := QueryDisc(nside, Ring, theta0, phi0, r)
		cur := make(map[int64]bool, len(disc))
		for _, p := range disc {
			cur[p] = true
		}
		if len(cur) != len(disc) {
			t.Fatalf("radius %f disc has duplicate pixels", r)
		}
		if prev != nil {
			if len(disc) < prevLen {
				t.Fatalf("radius %f disc smaller than inner disc", r)
			}
			for p := range prev {
				if !cur[p] {
					t.Fatalf("radius %f disc does not contain inner pixel %d", r, p)
				}
			}
		}
		prev, prevLen = cur, len(disc)
	}
}

func TestQueryDiscPole(t *testing.T) {
	nside := int64(8)
	disc := QueryDisc(nside, Ring, 0, 0, 0.4)
	if len(disc) == 0 {
		t.Fatal("polar disc is empty")
	}
	for _, p := range disc {
		theta, _ := PixToAng(nside, Ring, p)
		if theta > 0.4+2.4/float64(nside) {
			t.Errorf("pixel %d too far from the pole", p)
		}
	}
}

func angDist(t1, p1, t2, p2 float64) float64 {
	c := math.Sin(t1)*math.Sin(t2)*math.Cos(p1-p2) + math.Cos(t1)*math.Cos(t2)
	if c > 1 {
		c = 1
	}
	if c < -1 {
		c = -1
	}
	return math.Acos(c)
}
