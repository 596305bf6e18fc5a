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
	"math"
)

// Returns start pixel, length, colatitude and phi shift of iso-latitude
// ring i in 1..4*nside-1, for RING ordering. Shifted rings have their
// first pixel center offset by half a pixel in phi.
func ringInfo(nside, i int64) (sp, nr int64, theta float64, shifted bool) {
	fact2 := 1.0 / (3 * float64(nside) * float64(nside))
	switch {
	case i < nside: // north polar cap
		nr = 4 * i
		sp = 2 * i * (i - 1)
		theta = math.Acos(1 - float64(i)*float64(i)*fact2)
		shifted = true
	case i <= 3*nside: // equatorial region
		nr = 4 * nside
		sp = ncap(nside) + (i-nside)*nr
		theta = math.Acos((2*float64(nside) - float64(i)) * 2 / (3 * float64(nside)))
		shifted = (i-nside)&1 == 0
	default: // south polar cap
		is := 4*nside - i
		nr = 4 * is
		sp = Npix(nside) - 2*is*(is+1)
		theta = math.Acos(-1 + float64(is)*float64(is)*fact2)
		shifted = true
	}
	return sp, nr, theta, shifted
}

// Returns the number of the ring just north of latitude z, with 0
// meaning north of the first ring and 4*nside-1 south of the last.
func ringAbove(nside int64, z float64) int64 {
	az := math.Abs(z)
	if az <= 2.0/3.0 {
		return int64(float64(nside) * (2 - 1.5*z))
	}
	iring := int64(float64(nside) * math.Sqrt(3*(1-az)))
	if z > 0 {
		return iring
	}
	return 4*nside - iring - 1
}

// Returns the four pixels surrounding direction (theta,phi) and their
// bilinear interpolation weights. Weights sum to 1.
func InterpPix(nside int64, order Order, theta, phi float64) (pix [4]int64, wgt [4]float64) {
	z := math.Cos(theta)
	ir1 := ringAbove(nside, z)
	ir2 := ir1 + 1
	var theta1, theta2 float64

	if ir1 > 0 {
		sp, nr, th, shifted := ringInfo(nside, ir1)
		theta1 = th
		pix[0], pix[1], wgt[0], wgt[1] = ringNeighbors(sp, nr, shifted, phi)
	}
	if ir2 < 4*nside {
		sp, nr, th, shifted := ringInfo(nside, ir2)
		theta2 = th
		pix[2], pix[3], wgt[2], wgt[3] = ringNeighbors(sp, nr, shifted, phi)
	}

	switch {
	case ir1 == 0: // north polar interpolation
		wtheta := theta / theta2
		wgt[2] *= wtheta
		wgt[3] *= wtheta
		fac := (1 - wtheta) * 0.25
		wgt[0] = fac
		wgt[1] = fac
		wgt[2] += fac
		wgt[3] += fac
		pix[0] = (pix[2] + 2) & 3
		pix[1] = (pix[3] + 2) & 3
	case ir2 == 4*nside: // south polar interpolation
		wtheta := (theta - theta1) / (math.Pi - theta1)
		wgt[0] *= 1 - wtheta
		wgt[1] *= 1 - wtheta
		fac := wtheta * 0.25
		wgt[0] += fac
		wgt[1] += fac
		wgt[2] = fac
		wgt[3] = fac
		pix[2] = (pix[0]+2)&3 + Npix(nside) - 4
		pix[3] = (pix[1]+2)&3 + Npix(nside) - 4
	default:
		wtheta := (theta - theta1) / (theta2 - theta1)
		wgt[0] *= 1 - wtheta
		wgt[1] *= 1 - wtheta
		wgt[2] *= wtheta
		wgt[3] *= wtheta
	}

	if order == Nested {
		for i := range pix {
			pix[i] = RingToNest(nside, pix[i])
		}
	}
	return pix, wgt
}

// Returns the two pixels of one ring bracketing azimuth phi, with their
// unnormalized phi interpolation weights
func ringNeighbors(sp, nr int64, shifted bool, phi float64) (p1, p2 int64, w1, w2 float64) {
	dphi := 2 * math.Pi / float64(nr)
	off := 0.0
	if shifted {
		off = 0.5
	}
	tmp := phi/dphi - off
	i1 := int64(math.Floor(tmp))
	w := tmp - float64(i1)
	i2 := i1 + 1
	i1 = ((i1 % nr) + nr) % nr
	i2 = ((i2 % nr) + nr) % nr
	return sp + i1, sp + i2, 1 - w, w
}

// Bilinearly interpolates the map value at direction (theta,phi) from
// the four surrounding pixel centers. NaN pixels propagate into the
// result.
func InterpVal(data []float32, nside int64, order Order, theta, phi float64) float64 {
	pix, wgt := InterpPix(nside, order, theta, phi)
	v := float64(0)
	for i := range pix {
		v += wgt[i] * float64(data[pix[i]])
	}
	return v
}
