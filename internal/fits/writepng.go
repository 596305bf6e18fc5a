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

package fits

import (
	"bufio"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Colormap endpoints in Hcl space. Blending in Hcl keeps perceived
// lightness monotonic across the ramp.
var cmapLo = colorful.Hcl(265.0, 0.35, 0.10)
var cmapHi = colorful.Hcl(75.0, 0.50, 0.95)

// Writes an image to PNG with the given name, mapping values through a
// perceptual colormap. min>=max triggers automatic scaling from the
// image data. Optional contour levels are drawn in white.
func (img *Image) WritePNGToFile(fileName string, min, max float32, levels ...float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return img.WritePNG(writer, min, max, levels...)
}

// Writes an image to PNG via a Hcl colormap. Blank (NaN) pixels come
// out black. The vertical axis is flipped so that north is up, as FITS
// stores rows bottom first. Optional contour levels are drawn in
// white, one pixel wide along each upward level crossing.
func (img *Image) WritePNG(writer io.Writer, min, max float32, levels ...float32) error {
	if min >= max {
		min, max = img.MinMax()
	}
	scale := float32(0) // flat patches map to the low end of the ramp
	if max > min {
		scale = 1 / (max - min)
	}

	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		yoffset := y * img.Width
		for x := 0; x < img.Width; x++ {
			v := (img.Data[yoffset+x] - min) * scale
			if math.IsNaN(float64(v)) {
				out.Set(x, img.Height-1-y, color.RGBA{0, 0, 0, 255})
				continue
			}
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			c := cmapLo.BlendHcl(cmapHi, float64(v)).Clamped()
			r, g, b := c.RGB255()
			out.Set(x, img.Height-1-y, color.RGBA{r, g, b, 255})
		}
	}
	for _, level := range levels {
		img.drawContour(out, level)
	}
	return png.Encode(writer, out)
}

// Marks pixels at or above the level with a neighbor below it
func (img *Image) drawContour(out *image.RGBA, level float32) {
	white := color.RGBA{255, 255, 255, 255}
	at := func(x, y int) float32 {
		return img.Data[y*img.Width+x]
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			v := at(x, y)
			if !(v >= level) {
				continue
			}
			if (x > 0 && at(x-1, y) < level) || (x < img.Width-1 && at(x+1, y) < level) ||
				(y > 0 && at(x, y-1) < level) || (y < img.Height-1 && at(x, y+1) < level) {
				out.Set(x, img.Height-1-y, white)
			}
		}
	}
}
