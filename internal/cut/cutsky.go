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
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/pbnjay/memory"

	"github.com/mlnoga/cutsky/internal/fits"
	"github.com/mlnoga/cutsky/internal/healpix"
	"github.com/mlnoga/cutsky/internal/wcs"
)

// Low memory operating modes of the batch cutter
type LowMem int

const (
	LowMemAuto LowMem = iota // keep maps resident if they fit in half of physical memory
	LowMemOn                 // always load one map at a time
	LowMemOff                // always keep all maps resident
)

// A Promise materializes the pixel data of a sky map on demand
type Promise func() (*SkyMap, error)

// A Patch is one cutout of one healpix map on the shared target grid
type Patch struct {
	Legend    string
	DoContour bool
	Image     *fits.Image
	PNG       []byte  // set by CutPNG
	Phot      float64 // set by CutPhot
}

// A CutSky cuts a fixed set of healpix maps into patches of a fixed
// geometry at varying sky positions. Maps are grouped by healpix
// geometry so that the pixel mapping is computed once per group; in low
// memory mode only one map's pixel data is resident at a time. The most
// recent cut is cached and reused when the next call asks for the same
// position.
type CutSky struct {
	Npix    int
	Pixsize float64 // [arcmin]
	Proj    wcs.Projection
	Groups  []*MapGroup

	lowMem  bool
	lastKey string
	lastCut []Patch
}

// Builds a batch cutter over the given maps. Headers are read
// immediately, which validates the healpix geometry of every file;
// pixel data is loaded now, or lazily per cut in low memory mode.
func NewCutSky(entries []MapEntry, npix int, pixsize float64, proj wcs.Projection, mode LowMem) (*CutSky, error) {
	if len(entries) == 0 {
		return nil, ErrNoInput
	}

	maps := make([]*SkyMap, len(entries))
	var totalBytes uint64
	for i, e := range entries {
		m, err := fits.ReadMap(e.FileName, false)
		if err != nil {
			return nil, err
		}
		legend := e.Legend
		if legend == "" {
			legend = m.Legend()
		}
		maps[i] = &SkyMap{Map: m, Legend: legend, DoContour: e.DoContour}

		desc, err := m.Descriptor()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.FileName, err)
		}
		totalBytes += uint64(healpix.Npix(desc.Nside)) * 4
	}

	lowMem := mode == LowMemOn
	if mode == LowMemAuto {
		lowMem = totalBytes > memory.TotalMemory()/2
	}
	if !lowMem {
		for _, m := range maps {
			if err := m.Materialize(); err != nil {
				return nil, err
			}
		}
	}

	groups, err := GroupMaps(maps)
	if err != nil {
		return nil, err
	}
	return &CutSky{Npix: npix, Pixsize: pixsize, Proj: proj, Groups: groups, lowMem: lowMem}, nil
}

// Promises the maps of a group, in group order. In low memory mode each
// promise loads the map's pixel data when called.
func (c *CutSky) promises(g *MapGroup) []Promise {
	ps := make([]Promise, len(g.Maps))
	for i, m := range g.Maps {
		m := m
		ps[i] = func() (*SkyMap, error) {
			if err := m.Materialize(); err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return ps
}

// Releases a map's pixel data after use in low memory mode
func (c *CutSky) release(m *SkyMap) {
	if c.lowMem {
		m.Data = nil
	}
}

func selected(legend string, selection []string) bool {
	if len(selection) == 0 {
		return true
	}
	for _, s := range selection {
		if s == legend {
			return true
		}
	}
	return false
}

func cutKey(lon, lat float64, frame wcs.Frame, selection []string) string {
	return fmt.Sprintf("%g_%g_%s_%s", lon, lat, frame, strings.Join(selection, ","))
}

// Cuts all maps (or the selection, by legend) at the given sky
// position and returns one patch per map, each with a full sky
// projection header. Repeating the previous position returns the
// cached patches.
func (c *CutSky) CutFITS(lon, lat float64, frame wcs.Frame, selection []string) ([]Patch, error) {
	key := cutKey(lon, lat, frame, selection)
	if key == c.lastKey && c.lastCut != nil {
		return c.lastCut, nil
	}

	g := wcs.NewGrid(lon, lat, frame, c.Pixsize/60, c.Npix, c.Npix, c.Proj)

	var cuts []Patch
	for _, group := range c.Groups {
		mapping := HPToWCSIpx(g, group.Desc)

		for _, promise := range c.promises(group) {
			m, err := promise()
			if err != nil {
				return nil, err
			}
			if !selected(m.Legend, selection) {
				c.release(m)
				continue
			}

			img := &fits.Image{
				Width:  c.Npix,
				Height: c.Npix,
				Data:   mapping.Apply(m.Data),
				Header: fits.GridHeader(g),
			}
			img.Header.Set("FILENAME", m.FileName, "source healpix map")
			img.Header.Set("LEGEND", m.Legend, "map description")
			if m.DoContour {
				img.Header.Set("CONTOUR", true, "draw contours on image export")
			}
			cuts = append(cuts, Patch{Legend: m.Legend, DoContour: m.DoContour, Image: img})
			c.release(m)
		}
	}

	c.lastKey, c.lastCut = key, cuts
	return cuts, nil
}

// Cuts all maps at the given position and renders each patch to PNG.
// Patches flagged for contouring get white contours at half and a third
// of the patch maximum, unless the patch is too flat to contour.
func (c *CutSky) CutPNG(lon, lat float64, frame wcs.Frame, selection []string) ([]Patch, error) {
	cuts, err := c.CutFITS(lon, lat, frame, selection)
	if err != nil {
		return nil, err
	}
	for i := range cuts {
		if cuts[i].PNG != nil {
			continue
		}
		var levels []float32
		if cuts[i].DoContour {
			levels = contourLevels(cuts[i].Image.Data)
		}
		buf := &bytes.Buffer{}
		if err := cuts[i].Image.WritePNG(buf, 0, 0, levels...); err != nil {
			return nil, err
		}
		cuts[i].PNG = buf.Bytes()
	}
	return cuts, nil
}

// Contour levels at a third and half of the patch maximum, or none if
// the maximum does not rise three standard deviations above the mean
func contourLevels(data []float32) []float32 {
	var sum, sumSq float64
	max := math.Inf(-1)
	n := 0
	for _, v := range data {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		sum += f
		sumSq += f * f
		n++
		if f > max {
			max = f
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	std := math.Sqrt(sumSq/float64(n) - mean*mean)
	if max-mean <= 3*std {
		return nil
	}
	return []float32{float32(max / 3), float32(max / 2)}
}
