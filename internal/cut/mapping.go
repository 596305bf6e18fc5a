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

// Package cut projects healpix all-sky maps onto planar target grids
// and extracts image patches, radial profiles, stacks and aperture
// photometry from them.
package cut

import (
	"math"

	"github.com/mlnoga/cutsky/internal/healpix"
	"github.com/mlnoga/cutsky/internal/wcs"
)

// A PixelMapping relates target grid pixels to healpix pixels of one
// map geometry. Mask flags grid pixels whose sky position is inside the
// projection domain; Ipix holds one healpix index per flagged pixel, in
// row-major grid order. All maps sharing nside, ordering and frame
// reuse the same mapping.
type PixelMapping struct {
	Width, Height int
	Mask          []bool
	Ipix          []int64
}

// Computes the pixel mapping from a target grid to the healpix
// geometry given by the descriptor. Grid sky positions are rotated into
// the map frame before healpix index lookup.
func HPToWCSIpx(g *wcs.Grid, desc healpix.Descriptor) *PixelMapping {
	n := g.Width * g.Height
	lon := make([]float64, n)
	lat := make([]float64, n)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			lon[y*g.Width+x], lat[y*g.Width+x] = g.PixToWorld(float64(x), float64(y))
		}
	}
	lon, lat = wcs.Rotate(lon, lat, g.Frame, desc.Frame)

	m := &PixelMapping{
		Width:  g.Width,
		Height: g.Height,
		Mask:   make([]bool, n),
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(lon[i]) || math.IsNaN(lat[i]) {
			continue
		}
		theta := (90 - lat[i]) * math.Pi / 180
		phi := lon[i] * math.Pi / 180
		m.Mask[i] = true
		m.Ipix = append(m.Ipix, healpix.AngToPix(desc.Nside, desc.Order, theta, phi))
	}
	return m
}

// Gathers map values through the mapping into a patch. Grid pixels
// outside the projection domain become NaN.
func (m *PixelMapping) Apply(data []float32) []float32 {
	out := make([]float32, m.Width*m.Height)
	nan := float32(math.NaN())
	j := 0
	for i, ok := range m.Mask {
		if ok {
			out[i] = data[m.Ipix[j]]
			j++
		} else {
			out[i] = nan
		}
	}
	return out
}
