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

package cut

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/cutsky/internal/fits"
	"github.com/mlnoga/cutsky/internal/healpix"
	"github.com/mlnoga/cutsky/internal/wcs"
)

var ErrUnsupportedOrder = errors.New("unsupported interpolation order, must be 0 or 1")
var ErrNoInput = errors.New("no healpix maps given")

// Projects a healpix map onto a target grid. Order 0 picks the nearest
// healpix pixel, order 1 interpolates bilinearly between the four
// surrounding pixel centers. Grid pixels outside the projection domain
// are NaN.
func HPToWCS(m *fits.Map, g *wcs.Grid, order int) ([]float32, error) {
	desc, err := m.Descriptor()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.FileName, err)
	}
	switch order {
	case 0:
		return HPToWCSIpx(g, desc).Apply(m.Data), nil
	case 1:
		return hpToWCSBilinear(m.Data, g, desc), nil
	}
	return nil, fmt.Errorf("order %d: %w", order, ErrUnsupportedOrder)
}

func hpToWCSBilinear(data []float32, g *wcs.Grid, desc healpix.Descriptor) []float32 {
	n := g.Width * g.Height
	lon := make([]float64, n)
	lat := make([]float64, n)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			lon[y*g.Width+x], lat[y*g.Width+x] = g.PixToWorld(float64(x), float64(y))
		}
	}
	lon, lat = wcs.Rotate(lon, lat, g.Frame, desc.Frame)

	out := make([]float32, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(lon[i]) || math.IsNaN(lat[i]) {
			out[i] = float32(math.NaN())
			continue
		}
		theta := (90 - lat[i]) * math.Pi / 180
		phi := lon[i] * math.Pi / 180
		out[i] = float32(healpix.InterpVal(data, desc.Nside, desc.Order, theta, phi))
	}
	return out
}

// Projects a healpix map onto a fresh square grid centered on
// (lon,lat) and returns the result as an image with a full sky
// projection header
func HPProject(m *fits.Map, lon, lat float64, frame wcs.Frame, pixsize float64, npix int, proj wcs.Projection, order int) (*fits.Image, error) {
	g := wcs.NewGrid(lon, lat, frame, pixsize, npix, npix, proj)
	data, err := HPToWCS(m, g, order)
	if err != nil {
		return nil, err
	}
	img := &fits.Image{Width: npix, Height: npix, Data: data, Header: fits.GridHeader(g)}
	return img, nil
}
