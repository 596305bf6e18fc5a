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

// Package fits reads healpix sky maps from FITS files (image or binary
// table extensions) and writes projected patches back out as FITS
// images, 16-bit TIFFs or PNGs.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
package fits

import (
	"fmt"
	"math"

	"github.com/mlnoga/cutsky/internal/healpix"
	"github.com/mlnoga/cutsky/internal/wcs"
)

// A single FITS header card: key, typed value and optional comment.
// Values are int64, float64, bool or string.
type Card struct {
	Key     string
	Value   interface{}
	Comment string
}

// An ordered FITS header. Unlike a plain map this preserves card order,
// which matters because patch headers round-trip arbitrary annotation
// cards appended after the WCS keys.
type Header struct {
	Cards []Card
}

// Sets a key to a value, replacing an existing card in place or
// appending a new one
func (h *Header) Set(key string, value interface{}, comment string) {
	for i := range h.Cards {
		if h.Cards[i].Key == key {
			h.Cards[i].Value = value
			if comment != "" {
				h.Cards[i].Comment = comment
			}
			return
		}
	}
	h.Cards = append(h.Cards, Card{key, value, comment})
}

// Returns the raw value for a key
func (h *Header) Get(key string) (value interface{}, ok bool) {
	for i := range h.Cards {
		if h.Cards[i].Key == key {
			return h.Cards[i].Value, true
		}
	}
	return nil, false
}

func (h *Header) Int(key string) (int64, bool) {
	v, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	}
	return 0, false
}

func (h *Header) Float(key string) (float64, bool) {
	v, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func (h *Header) String(key string) (string, bool) {
	v, ok := h.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (h *Header) Bool(key string) (bool, bool) {
	v, ok := h.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// A healpix sky map: the 1-D pixel vector plus its header. Data may be
// nil when only the header has been read (low-memory mode); the map is
// then materialized on demand from FileName.
type Map struct {
	FileName string
	Header   Header
	Data     []float32
}

// Returns the pixelization descriptor from the map's NSIDE, ORDERING
// and COORDSYS header cards. Missing or unrecognized cards fail with
// the corresponding sentinel errors; nothing is ever defaulted.
func (m *Map) Descriptor() (desc healpix.Descriptor, err error) {
	nside, ok := m.Header.Int("NSIDE")
	if !ok {
		return desc, fmt.Errorf("%s: no NSIDE in healpix header", m.FileName)
	}
	if err = healpix.ValidNside(nside); err != nil {
		return desc, fmt.Errorf("%s: %w", m.FileName, err)
	}

	ordering, _ := m.Header.String("ORDERING")
	order, err := healpix.ParseOrder(ordering)
	if err != nil {
		return desc, err
	}

	coordsys, _ := m.Header.String("COORDSYS")
	frame, err := wcs.ParseFrame(coordsys)
	if err != nil {
		return desc, err
	}

	return healpix.Descriptor{Nside: nside, Order: order, Frame: frame}, nil
}

// The map's display label from its LEGEND card, or its file name when
// none was attached
func (m *Map) Legend() string {
	if legend, ok := m.Header.String("LEGEND"); ok {
		return legend
	}
	return m.FileName
}

// A 2-D image: a projected patch, a radial profile (height 1) or a
// stack plane. Data is in row-major order, NaN marks pixels outside
// the projection domain.
type Image struct {
	Width, Height int
	Data          []float32
	Header        Header
}

// Creates an image of the given shape with zeroed data
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
}

// Builds the FITS-WCS header cards describing a target grid
func GridHeader(g *wcs.Grid) Header {
	ctype1, ctype2 := g.Ctypes()
	h := Header{}
	h.Set("CTYPE1", ctype1, "projection type")
	h.Set("CTYPE2", ctype2, "projection type")
	h.Set("CRPIX1", g.Crpix1, "reference pixel")
	h.Set("CRPIX2", g.Crpix2, "reference pixel")
	h.Set("CRVAL1", g.Crval1, "[deg] reference value")
	h.Set("CRVAL2", g.Crval2, "[deg] reference value")
	h.Set("CDELT1", g.Cdelt1, "[deg/pixel] pixel scale")
	h.Set("CDELT2", g.Cdelt2, "[deg/pixel] pixel scale")
	if g.Frame == wcs.Equatorial {
		h.Set("RADESYS", "FK5", "celestial reference system")
		h.Set("EQUINOX", 2000.0, "equinox of celestial coordinates")
	}
	return h
}

// Builds the header cards describing a 1-D radial profile grid
func ProfileHeader(g *wcs.ProfileGrid) Header {
	h := Header{}
	h.Set("CTYPE1", "RADIUS", "angular distance from profile center")
	h.Set("CRPIX1", 1.0, "reference pixel")
	h.Set("CRVAL1", 0.0, "[deg] reference value")
	h.Set("CDELT1", g.Pixsize, "[deg/pixel] bin width")
	return h
}

// Min and max of the data, ignoring NaN entries. Returns 0,0 for an
// image without any finite pixels.
func (img *Image) MinMax() (min, max float32) {
	min, max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	found := false
	for _, v := range img.Data {
		if math.IsNaN(float64(v)) {
			continue
		}
		found = true
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if !found {
		return 0, 0
	}
	return min, max
}
