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
	"math"
)

// A planar target grid with its sky projection geometry. Pixel
// coordinates use the C convention: the center of the first pixel is at
// (0,0). Crpix follows the 1-based FITS convention, so the two differ
// by one.
type Grid struct {
	Width, Height  int
	Crpix1, Crpix2 float64 // reference pixel, 1-based
	Crval1, Crval2 float64 // sky position of the reference pixel [deg]
	Cdelt1, Cdelt2 float64 // pixel scale [deg/px], longitude axis negated
	Frame          Frame
	Proj           Projection
}

// Builds a target grid of the given shape centered on (lon,lat) with
// the given pixel scale in degrees per pixel
func NewGrid(lon, lat float64, frame Frame, pixsize float64, width, height int, proj Projection) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Crpix1: (float64(width) + 1) / 2,
		Crpix2: (float64(height) + 1) / 2,
		Crval1: lon,
		Crval2: lat,
		Cdelt1: -pixsize,
		Cdelt2: pixsize,
		Frame:  frame,
		Proj:   proj,
	}
}

// Re-centers the grid on a new reference sky position, keeping shape,
// scale and projection. Used when stacking the same geometry at many
// positions.
func (g *Grid) SetCenter(lon, lat float64) {
	g.Crval1, g.Crval2 = lon, lat
}

// Sets the pixel scale in degrees per pixel
func (g *Grid) SetPixsize(pixsize float64) {
	g.Cdelt1, g.Cdelt2 = -pixsize, pixsize
}

// FITS-WCS axis type strings, e.g. "RA---TAN" / "DEC--TAN"
func (g *Grid) Ctypes() (ctype1, ctype2 string) {
	lon, lat := g.Frame.ctypePrefixes()
	return lon + "-" + g.Proj.String(), lat + "-" + g.Proj.String()
}

// celestial pole position and native longitude of the pole, in radians
func (g *Grid) poleParams() (ap, dp, phip float64) {
	if g.Proj.zenithal() {
		return g.Crval1 * deg2rad, g.Crval2 * deg2rad, math.Pi
	}
	return (g.Crval1 - 180) * deg2rad, (90 - g.Crval2) * deg2rad, 0
}

// Transforms pixel coordinates to sky longitude/latitude in degrees in
// the grid's frame. Returns NaN,NaN for pixels outside the projection
// domain.
func (g *Grid) PixToWorld(px, py float64) (lon, lat float64) {
	x := (px - (g.Crpix1 - 1)) * g.Cdelt1
	y := (py - (g.Crpix2 - 1)) * g.Cdelt2

	phi, theta, ok := g.Proj.planeToNative(x, y)
	if !ok {
		return math.NaN(), math.NaN()
	}

	ap, dp, phip := g.poleParams()
	sd, cd := math.Sin(dp), math.Cos(dp)
	st, ct := math.Sin(theta), math.Cos(theta)
	dphi := phi - phip

	lat = math.Asin(clamp(st*sd+ct*cd*math.Cos(dphi), -1, 1))
	lon = ap + math.Atan2(-ct*math.Sin(dphi), st*cd-ct*sd*math.Cos(dphi))
	return normLon(lon * rad2deg), lat * rad2deg
}

// Transforms a sky position in degrees in the grid's frame to pixel
// coordinates. Returns NaN,NaN where the position does not project.
func (g *Grid) WorldToPix(lon, lat float64) (px, py float64) {
	ap, dp, phip := g.poleParams()
	sd, cd := math.Sin(dp), math.Cos(dp)
	a, d := lon*deg2rad, lat*deg2rad
	sb, cb := math.Sin(d), math.Cos(d)
	da := a - ap

	theta := math.Asin(clamp(sb*sd+cb*cd*math.Cos(da), -1, 1))
	phi := phip + math.Atan2(-cb*math.Sin(da), sb*cd-cb*sd*math.Cos(da))

	x, y, ok := g.Proj.nativeToPlane(phi, theta)
	if !ok {
		return math.NaN(), math.NaN()
	}
	return x/g.Cdelt1 + g.Crpix1 - 1, y/g.Cdelt2 + g.Crpix2 - 1
}

// A 1-D linear grid describing the radius axis of a radial profile.
// World coordinate is the angular radius in degrees; the center of
// pixel 0 lies at radius 0.
type ProfileGrid struct {
	Npix    int
	Pixsize float64 // [deg/px]
}

func NewProfileGrid(pixsize float64, npix int) *ProfileGrid {
	return &ProfileGrid{Npix: npix, Pixsize: pixsize}
}

// Transforms a (possibly fractional) pixel coordinate to a radius in
// degrees
func (g *ProfileGrid) PixToWorld(p float64) float64 {
	return p * g.Pixsize
}

// Radii of the npix+1 bin edges, from pixel coordinates -0.5 ... npix-0.5.
// The innermost edge is clamped to zero.
func (g *ProfileGrid) BinEdges() []float64 {
	edges := make([]float64, g.Npix+1)
	for i := range edges {
		r := g.PixToWorld(float64(i) - 0.5)
		if r < 0 {
			r = 0
		}
		edges[i] = r
	}
	return edges
}
