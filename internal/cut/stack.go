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
	"fmt"
	"math"

	"github.com/mlnoga/cutsky/internal/fits"
	"github.com/mlnoga/cutsky/internal/wcs"
)

// Stacks cutouts of a healpix map at many sky positions onto one
// shared grid geometry. pixsizes holds either one shared pixel scale in
// degrees, or one per position. With keep set, the individual cutouts
// are returned instead of their mean. Pixels that fall outside the
// projection at every position are NaN in the mean.
func HPStack(m *fits.Map, lons, lats []float64, frame wcs.Frame, pixsizes []float64, npix int, proj wcs.Projection, order int, keep bool) ([]*fits.Image, error) {
	if len(lons) == 0 || len(lons) != len(lats) {
		return nil, fmt.Errorf("need equally many longitudes and latitudes, got %d and %d", len(lons), len(lats))
	}
	switch len(pixsizes) {
	case 1:
		shared := pixsizes[0]
		pixsizes = make([]float64, len(lons))
		for i := range pixsizes {
			pixsizes[i] = shared
		}
	case len(lons):
	default:
		return nil, fmt.Errorf("need one pixel scale, or one per position, got %d for %d positions", len(pixsizes), len(lons))
	}

	// reference geometry for the result header
	g := wcs.NewGrid(0, 0, frame, pixsizes[0], npix, npix, proj)

	var images []*fits.Image
	sums := make([]float64, npix*npix)
	counts := make([]int, npix*npix)
	for i := range lons {
		g.SetCenter(lons[i], lats[i])
		g.SetPixsize(pixsizes[i])
		data, err := HPToWCS(m, g, order)
		if err != nil {
			return nil, err
		}
		if keep {
			img := &fits.Image{Width: npix, Height: npix, Data: data, Header: fits.GridHeader(g)}
			images = append(images, img)
			continue
		}
		for j, v := range data {
			if !math.IsNaN(float64(v)) {
				sums[j] += float64(v)
				counts[j]++
			}
		}
	}
	if keep {
		return images, nil
	}

	g.SetCenter(0, 0)
	g.SetPixsize(pixsizes[0])
	mean := &fits.Image{Width: npix, Height: npix, Data: make([]float32, npix*npix), Header: fits.GridHeader(g)}
	for j := range sums {
		if counts[j] == 0 {
			mean.Data[j] = float32(math.NaN())
		} else {
			mean.Data[j] = float32(sums[j] / float64(counts[j]))
		}
	}
	return []*fits.Image{mean}, nil
}
