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
	"math"

	"github.com/mlnoga/cutsky/internal/fits"
	"github.com/mlnoga/cutsky/internal/qsort"
	"github.com/mlnoga/cutsky/internal/wcs"
)

// Cuts all maps at the given position and performs aperture photometry
// on each patch
func (c *CutSky) CutPhot(lon, lat float64, frame wcs.Frame, selection []string) ([]Patch, error) {
	cuts, err := c.CutFITS(lon, lat, frame, selection)
	if err != nil {
		return nil, err
	}
	r := 3 / c.Pixsize // 3 arcmin aperture in pixels
	for i := range cuts {
		cuts[i].Phot = Phot(cuts[i].Image, r)
	}
	return cuts, nil
}

// Sums the background-subtracted flux in a circular aperture of r
// pixels around the patch center. The background is the median of the
// finite patch pixels. Blank pixels inside the aperture do not
// contribute.
func Phot(img *fits.Image, r float64) float64 {
	finite := make([]float32, 0, len(img.Data))
	for _, v := range img.Data {
		if !math.IsNaN(float64(v)) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	var median float64
	if len(finite) > 1<<16 {
		median = float64(qsort.FastApproxMedian(finite, make([]float32, 8191)))
	} else {
		median = float64(qsort.QSelectMedianFloat32(finite))
	}

	cx, cy := float64(img.Width)/2, float64(img.Height)/2
	rSq := r * r
	sum := 0.0
	for y := 0; y < img.Height; y++ {
		dy := float64(y) - cy
		for x := 0; x < img.Width; x++ {
			dx := float64(x) - cx
			if dx*dx+dy*dy > rSq {
				continue
			}
			v := float64(img.Data[y*img.Width+x])
			if math.IsNaN(v) {
				continue
			}
			sum += v - median
		}
	}
	return sum
}
