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

// Returns the indices of all pixels whose centers lie within the disc of
// the given angular radius around direction (theta0,phi0), in ascending
// RING order, converted to the requested ordering. Discs of
// non-increasing radius are nested: growing the radius never drops a
// pixel. A non-positive radius yields an empty set.
func QueryDisc(nside int64, order Order, theta0, phi0, radius float64) []int64 {
	if radius <= 0 {
		return nil
	}
	if radius >= math.Pi {
		pix := make([]int64, Npix(nside))
		for i := range pix {
			pix[i] = int64(i)
		}
		return pix
	}

	cosrad := math.Cos(radius)
	cost0, sint0 := math.Cos(theta0), math.Sin(theta0)
	var pix []int64

	for i := int64(1); i < 4*nside; i++ {
		sp, nr, theta, shifted := ringInfo(nside, i)
		if math.Abs(theta-theta0) >= radius {
			continue
		}

		cost, sint := math.Cos(theta), math.Sin(theta)
		denom := sint * sint0
		if denom < 1e-12 {
			// disc center at a pole: the whole ring lies within the
			// colatitude test above
			appendRing(&pix, sp, 0, nr-1, nr)
			continue
		}
		cosdphi := (cosrad - cost*cost0) / denom
		if cosdphi <= -1 {
			appendRing(&pix, sp, 0, nr-1, nr)
			continue
		}
		if cosdphi >= 1 {
			continue
		}
		dphi := math.Acos(cosdphi)

		off := 0.0
		if shifted {
			off = 0.5
		}
		scale := float64(nr) / (2 * math.Pi)
		jLo := int64(math.Ceil((phi0-dphi)*scale - off))
		jHi := int64(math.Floor((phi0+dphi)*scale - off))
		if jHi-jLo+1 >= nr {
			appendRing(&pix, sp, 0, nr-1, nr)
			continue
		}
		appendRing(&pix, sp, jLo, jHi, nr)
	}

	if order == Nested {
		for i := range pix {
			pix[i] = RingToNest(nside, pix[i])
		}
	}
	return pix
}

// Appends pixels sp+j for j in [jLo,jHi], wrapping j modulo nr
func appendRing(pix *[]int64, sp, jLo, jHi, nr int64) {
	for j := jLo; j <= jHi; j++ {
		jj := ((j % nr) + nr) % nr
		*pix = append(*pix, sp+jj)
	}
}
