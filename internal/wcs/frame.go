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

// Package wcs implements the planar target grids onto which healpix
// maps are projected: sky coordinate frames, frame-to-frame rotation,
// a whitelist of FITS-WCS projection types and the pixel/world
// transforms between them.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrMissingFrame = errors.New("no COORDSYS in header")
	ErrUnknownFrame = errors.New("unknown or unsupported coordinate frame")
)

// A sky coordinate reference frame. Only the galactic and equatorial
// (celestial J2000) families are supported; notably the ecliptic family
// is not.
type Frame int

const (
	Galactic Frame = iota
	Equatorial
)

func (f Frame) Name() string {
	if f == Equatorial {
		return "equatorial"
	}
	return "galactic"
}

func (f Frame) String() string { return f.Name() }

// CTYPE axis name prefixes for FITS-WCS headers
func (f Frame) ctypePrefixes() (lon, lat string) {
	if f == Equatorial {
		return "RA--", "DEC-"
	}
	return "GLON", "GLAT"
}

// Canonicalizes a frame name, accepting the synonyms in common use in
// healpix map headers. The empty string means the header carried no
// frame at all. Recognized but unsupported families (e.g. ecliptic)
// fail with ErrUnknownFrame like unrecognized ones.
func ParseFrame(name string) (Frame, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "":
		return Galactic, ErrMissingFrame
	case "G", "GAL", "GALACTIC":
		return Galactic, nil
	case "C", "Q", "EQ", "EQUATORIAL", "CELESTIAL2000", "FK5", "ICRS":
		return Equatorial, nil
	}
	return Galactic, fmt.Errorf("%q: %w", name, ErrUnknownFrame)
}

// Rotation matrix taking equatorial FK5 J2000 unit vectors to galactic
// ones, IAU 1958 definition evaluated at J2000
var eqToGal = [3][3]float64{
	{-0.0548755604162154, -0.8734370902348850, -0.4838350155487132},
	{+0.4941094278755837, -0.4448296299600112, +0.7469822444972189},
	{-0.8676661490190047, -0.1980763734312015, +0.4559837761750669},
}

// Rotates longitude/latitude arrays (degrees) from one frame into
// another. Delivers the input slices unchanged when both frames are
// equal, so callers can cheaply reconcile already-matching frames.
func Rotate(lon, lat []float64, from, to Frame) (rlon, rlat []float64) {
	if from == to {
		return lon, lat
	}

	m := eqToGal
	if from == Galactic { // inverse rotation is the transpose
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				m[i][j] = eqToGal[j][i]
			}
		}
	}

	rlon = make([]float64, len(lon))
	rlat = make([]float64, len(lat))
	for i := range lon {
		if math.IsNaN(lon[i]) || math.IsNaN(lat[i]) {
			rlon[i], rlat[i] = math.NaN(), math.NaN()
			continue
		}
		l, b := lon[i]*deg2rad, lat[i]*deg2rad
		cb := math.Cos(b)
		x := cb * math.Cos(l)
		y := cb * math.Sin(l)
		z := math.Sin(b)

		xr := m[0][0]*x + m[0][1]*y + m[0][2]*z
		yr := m[1][0]*x + m[1][1]*y + m[1][2]*z
		zr := m[2][0]*x + m[2][1]*y + m[2][2]*z

		rlon[i] = normLon(math.Atan2(yr, xr) * rad2deg)
		rlat[i] = math.Asin(clamp(zr, -1, 1)) * rad2deg
	}
	return rlon, rlat
}

// Angular separation between two sky positions in degrees, via the
// Vincenty formula which is stable at all separations
func AngularSeparation(lon1, lat1, lon2, lat2 float64) float64 {
	l1, b1 := lon1*deg2rad, lat1*deg2rad
	l2, b2 := lon2*deg2rad, lat2*deg2rad
	dl := l2 - l1
	num1 := math.Cos(b2) * math.Sin(dl)
	num2 := math.Cos(b1)*math.Sin(b2) - math.Sin(b1)*math.Cos(b2)*math.Cos(dl)
	den := math.Sin(b1)*math.Sin(b2) + math.Cos(b1)*math.Cos(b2)*math.Cos(dl)
	return math.Atan2(math.Hypot(num1, num2), den) * rad2deg
}

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizes a longitude in degrees to [0,360)
func normLon(l float64) float64 {
	l = math.Mod(l, 360)
	if l < 0 {
		l += 360
	}
	return l
}
