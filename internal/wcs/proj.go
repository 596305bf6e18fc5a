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

package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrUnknownProjection = errors.New("unknown or unsupported projection type")

// A FITS-WCS projection type code. The zenithal family (TAN, SIN, ARC,
// STG, ZEA) places the native pole at the reference position; CAR, SFL
// and AIT place the native origin there.
type Projection int

const (
	TAN Projection = iota // gnomonic
	SIN                   // orthographic
	ARC                   // zenithal equidistant
	STG                   // stereographic
	ZEA                   // zenithal equal-area
	CAR                   // plate carree
	SFL                   // Sanson-Flamsteed
	AIT                   // Hammer-Aitoff
)

var projNames = [...]string{"TAN", "SIN", "ARC", "STG", "ZEA", "CAR", "SFL", "AIT"}

func (p Projection) String() string {
	if p < 0 || int(p) >= len(projNames) {
		return "???"
	}
	return projNames[p]
}

func (p Projection) zenithal() bool { return p <= ZEA }

// Validates a projection type code against the supported whitelist
func ParseProjection(code string) (Projection, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	for i, name := range projNames {
		if c == name {
			return Projection(i), nil
		}
	}
	return TAN, fmt.Errorf("%q: %w", code, ErrUnknownProjection)
}

// Converts projection plane coordinates (degrees) to native spherical
// coordinates (radians). ok is false outside the projection's domain.
func (p Projection) planeToNative(x, y float64) (phi, theta float64, ok bool) {
	if p.zenithal() {
		r := math.Hypot(x, y) * deg2rad
		phi = math.Atan2(x, -y)
		switch p {
		case TAN:
			theta = math.Atan2(1, r)
		case SIN:
			if r > 1 {
				return 0, 0, false
			}
			theta = math.Acos(r)
		case ARC:
			if r > math.Pi {
				return 0, 0, false
			}
			theta = halfPi - r
		case STG:
			theta = halfPi - 2*math.Atan(r/2)
		case ZEA:
			if r/2 > 1 {
				return 0, 0, false
			}
			theta = halfPi - 2*math.Asin(r/2)
		}
		return phi, theta, true
	}

	xr, yr := x*deg2rad, y*deg2rad
	switch p {
	case CAR:
		if math.Abs(x) > 180 || math.Abs(y) > 90 {
			return 0, 0, false
		}
		return xr, yr, true
	case SFL:
		if math.Abs(y) > 90 {
			return 0, 0, false
		}
		ct := math.Cos(yr)
		if ct < 1e-12 {
			if x != 0 {
				return 0, 0, false
			}
			return 0, yr, true
		}
		phi = xr / ct
		if math.Abs(phi) > math.Pi {
			return 0, 0, false
		}
		return phi, yr, true
	case AIT:
		z2 := 1 - (xr/4)*(xr/4) - (yr/2)*(yr/2)
		if z2 < 0.5 { // outside the projection boundary ellipse
			return 0, 0, false
		}
		z := math.Sqrt(z2)
		st := yr * z
		if math.Abs(st) > 1 {
			return 0, 0, false
		}
		theta = math.Asin(st)
		phi = 2 * math.Atan2(z*xr/2, 2*z2-1)
		return phi, theta, true
	}
	return 0, 0, false
}

// Converts native spherical coordinates (radians) to projection plane
// coordinates (degrees). ok is false where the direction does not
// project onto the plane.
func (p Projection) nativeToPlane(phi, theta float64) (x, y float64, ok bool) {
	if p.zenithal() {
		var r float64 // native radius in radians
		switch p {
		case TAN:
			if theta <= 0 {
				return 0, 0, false
			}
			r = 1 / math.Tan(theta)
		case SIN:
			if theta < 0 {
				return 0, 0, false
			}
			r = math.Cos(theta)
		case ARC:
			r = halfPi - theta
		case STG:
			r = 2 * math.Tan((halfPi-theta)/2)
		case ZEA:
			r = 2 * math.Sin((halfPi-theta)/2)
		}
		rd := r * rad2deg
		return rd * math.Sin(phi), -rd * math.Cos(phi), true
	}

	phi = normPhi(phi)
	switch p {
	case CAR:
		return phi * rad2deg, theta * rad2deg, true
	case SFL:
		return phi * math.Cos(theta) * rad2deg, theta * rad2deg, true
	case AIT:
		gamma := math.Sqrt(2 / (1 + math.Cos(theta)*math.Cos(phi/2)))
		x = 2 * gamma * math.Cos(theta) * math.Sin(phi/2) * rad2deg
		y = gamma * math.Sin(theta) * rad2deg
		return x, y, true
	}
	return 0, 0, false
}

const halfPi = math.Pi / 2

// normalizes a native longitude in radians to [-pi,pi)
func normPhi(phi float64) float64 {
	phi = math.Mod(phi+math.Pi, 2*math.Pi)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	return phi - math.Pi
}
