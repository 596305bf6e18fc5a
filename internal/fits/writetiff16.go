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
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

// Write a grayscale image to 16-bit TIFF, using the given min and max.
func (img *Image) WriteTIFF16ToFile(fileName string, min, max float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return img.WriteTIFF16(writer, min, max)
}

// Write a grayscale image to 16-bit TIFF, using the given min and max.
// min>=max triggers automatic scaling from the image data.
func (img *Image) WriteTIFF16(writer io.Writer, min, max float32) error {
	if min >= max {
		min, max = img.MinMax()
	}
	scale := float32(0) // flat patches come out black
	if max > min {
		scale = 1 / (max - min)
	}

	out := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		yoffset := y * img.Width
		for x := 0; x < img.Width; x++ {
			gray := (img.Data[yoffset+x] - min) * scale
			// replace NaNs with zeros for export, else TIFF output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			out.SetGray16(x, img.Height-1-y, color.Gray16{uint16(gray * 65535)})
		}
	}
	return tiff.Encode(writer, out, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
