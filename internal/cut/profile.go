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

	"gonum.org/v1/gonum/stat"

	"github.com/mlnoga/cutsky/internal/fits"
	"github.com/mlnoga/cutsky/internal/healpix"
	"github.com/mlnoga/cutsky/internal/wcs"
)

// Extracts a radial profile around (lon,lat) directly from a healpix
// map. Bin i averages the map over the annulus between the profile
// grid's bin edges i and i+1, built from query discs at each edge
// radius. Returns the mean per bin, and the standard deviation per bin
// if std is set. Empty annuli yield NaN.
func HPToProfile(m *fits.Map, lon, lat float64, frame wcs.Frame, g *wcs.ProfileGrid, std bool) (profile, stdProfile []float64, err error) {
	desc, err := m.Descriptor()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", m.FileName, err)
	}
	lons, lats := wcs.Rotate([]float64{lon}, []float64{lat}, frame, desc.Frame)
	theta := (90 - lats[0]) * math.Pi / 180
	phi := lons[0] * math.Pi / 180

	edges := g.BinEdges()
	discs := make([][]int64, len(edges))
	for i, r := range edges {
		discs[i] = healpix.QueryDisc(desc.Nside, desc.Order, theta, phi, r*math.Pi/180)
	}

	profile = make([]float64, g.Npix)
	if std {
		stdProfile = make([]float64, g.Npix)
	}
	for i := 0; i < g.Npix; i++ {
		// discs are nested, so the annulus is the plain set difference
		// of consecutive discs
		inner := make(map[int64]struct{}, len(discs[i]))
		for _, p := range discs[i] {
			inner[p] = struct{}{}
		}
		var vals []float64
		for _, p := range discs[i+1] {
			if _, ok := inner[p]; !ok {
				vals = append(vals, float64(m.Data[p]))
			}
		}
		if len(vals) == 0 {
			profile[i] = math.NaN()
			if std {
				stdProfile[i] = math.NaN()
			}
			continue
		}
		mean := stat.Mean(vals, nil)
		profile[i] = mean
		if std {
			var sumSq float64
			for _, v := range vals {
				sumSq += (v - mean) * (v - mean)
			}
			stdProfile[i] = math.Sqrt(sumSq / float64(len(vals)))
		}
	}
	return profile, stdProfile, nil
}

// Extracts a radial profile from an already-projected patch. Pixels are
// binned by their angular separation from the grid reference position;
// each bin is the mean of its pixels. Bins without pixels yield NaN.
func WCSToProfile(img *fits.Image, g *wcs.Grid, pg *wcs.ProfileGrid) []float64 {
	edges := pg.BinEdges()
	sums := make([]float64, pg.Npix)
	counts := make([]float64, pg.Npix)

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			v := float64(img.Data[y*img.Width+x])
			if math.IsNaN(v) {
				continue
			}
			lon, lat := g.PixToWorld(float64(x), float64(y))
			if math.IsNaN(lon) {
				continue
			}
			sep := wcs.AngularSeparation(lon, lat, g.Crval1, g.Crval2)
			bin := binOf(sep, edges)
			if bin < 0 {
				continue
			}
			sums[bin] += v
			counts[bin]++
		}
	}

	profile := make([]float64, pg.Npix)
	for i := range profile {
		if counts[i] == 0 {
			profile[i] = math.NaN()
		} else {
			profile[i] = sums[i] / counts[i]
		}
	}
	return profile
}

// Locates the bin of a value in a sorted edge vector, -1 if outside
func binOf(v float64, edges []float64) int {
	if v < edges[0] || v >= edges[len(edges)-1] {
		return -1
	}
	lo, hi := 0, len(edges)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if v >= edges[mid] {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
