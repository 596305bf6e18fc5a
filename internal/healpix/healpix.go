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

// Package healpix implements the HEALPix equal-area sphere pixelization:
// angle to pixel index resolution in RING and NESTED ordering, index
// conversions between the two orderings, bilinear interpolation and disc
// queries. Angles follow the HEALPix convention: colatitude theta in
// [0,pi] counted from the north pole, azimuth phi in radians.
package healpix

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/cutsky/internal/wcs"
)

var (
	ErrMissingOrdering = errors.New("no ORDERING in healpix header")
	ErrUnknownOrdering = errors.New("unknown ORDERING in healpix header")
	ErrInvalidNside    = errors.New("NSIDE must be a power of two")
)

// Pixel ordering scheme
type Order int

const (
	Ring Order = iota
	Nested
)

func (o Order) String() string {
	if o == Nested {
		return "NESTED"
	}
	return "RING"
}

// Parses an ORDERING header value, case-insensitively. An empty value
// means the header carried no ordering at all.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Ring, ErrMissingOrdering
	case "ring":
		return Ring, nil
	case "nested", "nest":
		return Nested, nil
	}
	return Ring, fmt.Errorf("%q: %w", s, ErrUnknownOrdering)
}

// Describes the pixelization of one healpix map. Two maps share their
// expensive grid-to-index resolution iff their descriptors are equal.
type Descriptor struct {
	Nside int64
	Order Order
	Frame wcs.Frame
}

// Grouping key for maps of identical pixelization
func (d Descriptor) Key() string {
	return fmt.Sprintf("%d_%s_%s", d.Nside, d.Order, d.Frame.Name())
}

// Returns the number of pixels for a given nside
func Npix(nside int64) int64 { return 12 * nside * nside }

// Validates that nside is a positive power of two
func ValidNside(nside int64) error {
	if nside <= 0 || nside&(nside-1) != 0 {
		return fmt.Errorf("%d: %w", nside, ErrInvalidNside)
	}
	return nil
}

const halfPi = math.Pi / 2

// number of pixels in both polar caps
func ncap(nside int64) int64 { return 2 * nside * (nside - 1) }

// Resolves the pixel index containing direction (theta,phi) in the
// given ordering scheme.
func AngToPix(nside int64, order Order, theta, phi float64) int64 {
	if order == Nested {
		return angToPixNest(nside, theta, phi)
	}
	return angToPixRing(nside, theta, phi)
}

func angToPixRing(nside int64, theta, phi float64) int64 {
	z := math.Cos(theta)
	za := math.Abs(z)
	tt := math.Mod(phi/halfPi, 4)
	if tt < 0 {
		tt += 4
	}

	if za <= 2.0/3.0 { // equatorial region
		temp1 := float64(nside) * (0.5 + tt)
		temp2 := float64(nside) * z * 0.75
		jp := int64(math.Floor(temp1 - temp2)) // ascending edge line index
		jm := int64(math.Floor(temp1 + temp2)) // descending edge line index

		ir := nside + 1 + jp - jm // ring number, 1..2*nside+1
		kshift := 1 - ir&1
		nl4 := 4 * nside
		ip := (jp + jm - nside + kshift + 1) >> 1
		ip = ((ip % nl4) + nl4) % nl4

		return ncap(nside) + (ir-1)*nl4 + ip
	}

	// polar caps
	tp := tt - math.Floor(tt)
	tmp := float64(nside) * math.Sqrt(3*(1-za))
	jp := int64(tp * tmp)
	jm := int64((1 - tp) * tmp)

	ir := jp + jm + 1 // ring number counted from the closest pole
	ip := int64(tt * float64(ir))
	ip = ((ip % (4 * ir)) + 4*ir) % (4 * ir)

	if z > 0 {
		return 2*ir*(ir-1) + ip
	}
	return Npix(nside) - 2*ir*(ir+1) + ip
}

func angToPixNest(nside int64, theta, phi float64) int64 {
	z := math.Cos(theta)
	za := math.Abs(z)
	tt := math.Mod(phi/halfPi, 4)
	if tt < 0 {
		tt += 4
	}

	var face, ix, iy int64
	if za <= 2.0/3.0 { // equatorial region
		temp1 := float64(nside) * (0.5 + tt)
		temp2 := float64(nside) * z * 0.75
		jp := int64(math.Floor(temp1 - temp2))
		jm := int64(math.Floor(temp1 + temp2))

		ifp := jp / nside
		ifm := jm / nside
		switch {
		case ifp == ifm:
			face = ifp&3 + 4
		case ifp < ifm:
			face = ifp & 3
		default:
			face = ifm&3 + 8
		}
		ix = jm & (nside - 1)
		iy = nside - 1 - jp&(nside-1)
	} else { // polar caps
		ntt := int64(tt)
		if ntt >= 4 {
			ntt = 3
		}
		tp := tt - float64(ntt)
		tmp := float64(nside) * math.Sqrt(3*(1-za))
		jp := int64(tp * tmp)
		jm := int64((1 - tp) * tmp)
		if jp >= nside {
			jp = nside - 1
		}
		if jm >= nside {
			jm = nside - 1
		}
		if z >= 0 {
			face, ix, iy = ntt, nside-1-jm, nside-1-jp
		} else {
			face, ix, iy = ntt+8, jp, jm
		}
	}
	return xyfToNest(nside, ix, iy, face)
}

// Returns the direction (theta,phi) of the center of the given pixel.
func PixToAng(nside int64, order Order, pix int64) (theta, phi float64) {
	if order == Nested {
		pix = NestToRing(nside, pix)
	}
	return pixToAngRing(nside, pix)
}

func pixToAngRing(nside, pix int64) (theta, phi float64) {
	nc, npix := ncap(nside), Npix(nside)
	fact2 := 1.0 / (3 * float64(nside) * float64(nside))

	if pix < nc { // north polar cap
		iring := (1 + isqrt(1+2*pix)) >> 1
		iphi := pix + 1 - 2*iring*(iring-1)
		theta = math.Acos(1 - float64(iring)*float64(iring)*fact2)
		phi = (float64(iphi) - 0.5) * halfPi / float64(iring)
		return theta, phi
	}
	if pix < npix-nc { // equatorial region
		ip := pix - nc
		nl4 := 4 * nside
		iring := ip/nl4 + nside
		iphi := ip%nl4 + 1
		fodd := 0.5 * float64(1+(iring+nside)&1)
		theta = math.Acos((2*float64(nside) - float64(iring)) * 2 / (3 * float64(nside)))
		phi = (float64(iphi) - fodd) * halfPi / float64(nside)
		return theta, phi
	}
	// south polar cap
	ip := npix - pix
	iring := (1 + isqrt(2*ip-1)) >> 1
	iphi := 4*iring + 1 - (ip - 2*iring*(iring-1))
	theta = math.Acos(-1 + float64(iring)*float64(iring)*fact2)
	phi = (float64(iphi) - 0.5) * halfPi / float64(iring)
	return theta, phi
}

// integer square root, exact for the pixel index ranges used here
func isqrt(v int64) int64 {
	s := int64(math.Sqrt(float64(v) + 0.5))
	for s > 0 && s*s > v {
		s--
	}
	for (s+1)*(s+1) <= v {
		s++
	}
	return s
}

// ring number of faces crossing each latitude band, and face phi offsets
var jrll = [12]int64{2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}
var jpll = [12]int64{1, 3, 5, 7, 0, 2, 4, 6, 1, 3, 5, 7}

// Converts a NESTED pixel index to RING
func NestToRing(nside, pix int64) int64 {
	ix, iy, face := nestToXyf(nside, pix)
	return xyfToRing(nside, ix, iy, face)
}

// Converts a RING pixel index to NESTED
func RingToNest(nside, pix int64) int64 {
	ix, iy, face := ringToXyf(nside, pix)
	return xyfToNest(nside, ix, iy, face)
}

func xyfToNest(nside, ix, iy, face int64) int64 {
	return face*nside*nside + spreadBits(ix) + spreadBits(iy)<<1
}

func nestToXyf(nside, pix int64) (ix, iy, face int64) {
	np := nside * nside
	face = pix / np
	p := pix % np
	return compressBits(p), compressBits(p >> 1), face
}

func xyfToRing(nside, ix, iy, face int64) int64 {
	jr := jrll[face]*nside - ix - iy - 1 // ring number, 1..4*nside-1

	var nr, kshift, nBefore int64
	switch {
	case jr < nside: // north polar cap
		nr = jr
		nBefore = 2 * nr * (nr - 1)
		kshift = 0
	case jr > 3*nside: // south polar cap
		nr = 4*nside - jr
		nBefore = Npix(nside) - 2*(nr+1)*nr
		kshift = 0
	default: // equatorial region
		nr = nside
		nBefore = ncap(nside) + (jr-nside)*4*nside
		kshift = (jr - nside) & 1
	}

	jp := (jpll[face]*nr + ix - iy + 1 + kshift) / 2
	if jp > 4*nr {
		jp -= 4 * nr
	}
	if jp < 1 {
		jp += 4 * nr
	}
	return nBefore + jp - 1
}

func ringToXyf(nside, pix int64) (ix, iy, face int64) {
	nc, npix := ncap(nside), Npix(nside)
	nl2 := 2 * nside

	var iring, iphi, kshift, nr int64
	switch {
	case pix < nc: // north polar cap
		iring = (1 + isqrt(1+2*pix)) >> 1
		iphi = pix + 1 - 2*iring*(iring-1)
		kshift, nr = 0, iring
		face = (iphi - 1) / nr
	case pix < npix-nc: // equatorial region
		ip := pix - nc
		tmp := ip / (4 * nside)
		iring = tmp + nside
		iphi = ip - tmp*4*nside + 1
		kshift = (iring + nside) & 1
		nr = nside
		ire := iring - nside + 1
		irm := nl2 + 2 - ire
		ifm := (iphi - ire/2 + nside - 1) / nside
		ifp := (iphi - irm/2 + nside - 1) / nside
		switch {
		case ifp == ifm:
			face = ifp&3 + 4
		case ifp < ifm:
			face = ifp
		default:
			face = ifm + 8
		}
	default: // south polar cap
		ip := npix - pix
		iring = (1 + isqrt(2*ip-1)) >> 1
		iphi = 4*iring + 1 - (ip - 2*iring*(iring-1))
		kshift, nr = 0, iring
		iring = 2*nl2 - iring
		face = 8 + (iphi-1)/nr
	}

	irt := iring - jrll[face]*nside + 1
	ipt := 2*iphi - jpll[face]*nr - kshift - 1
	if ipt >= nl2 {
		ipt -= 8 * nside
	}
	ix = (ipt - irt) >> 1
	iy = (-(ipt + irt)) >> 1
	return ix, iy, face
}

// Spreads the lower 32 bits of v apart, inserting a zero bit between each
func spreadBits(v int64) int64 {
	x := uint64(v) & 0x00000000ffffffff
	x = (x | x<<16) & 0x0000ffff0000ffff
	x = (x | x<<8) & 0x00ff00ff00ff00ff
	x = (x | x<<4) & 0x0f0f0f0f0f0f0f0f
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return int64(x)
}

// Inverse of spreadBits: collects every second bit of v
func compressBits(v int64) int64 {
	x := uint64(v) & 0x5555555555555555
	x = (x | x>>1) & 0x3333333333333333
	x = (x | x>>2) & 0x0f0f0f0f0f0f0f0f
	x = (x | x>>4) & 0x00ff00ff00ff00ff
	x = (x | x>>8) & 0x0000ffff0000ffff
	x = (x | x>>16) & 0x00000000ffffffff
	return int64(x)
}
