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
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/mlnoga/cutsky/internal/healpix"
	"github.com/mlnoga/cutsky/internal/wcs"
)

func TestHeaderSetGet(t *testing.T) {
	h := Header{}
	h.Set("NSIDE", int64(64), "healpix resolution")
	h.Set("ORDERING", "RING", "pixel ordering")
	h.Set("NSIDE", int64(128), "updated")

	if len(h.Cards) != 2 {
		t.Fatalf("got %d cards expect 2, Set must replace", len(h.Cards))
	}
	if v, ok := h.Int("NSIDE"); !ok || v != 128 {
		t.Errorf("NSIDE got %d,%v expect 128", v, ok)
	}
	if v, ok := h.String("ORDERING"); !ok || v != "RING" {
		t.Errorf("ORDERING got %q,%v", v, ok)
	}
	if _, ok := h.Int("MISSING"); ok {
		t.Error("missing key must not be found")
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in    string
		value interface{}
	}{
		{"                  64 / healpix resolution", int64(64)},
		{"                 -32 / bits", int64(-32)},
		{"              1.5E-2 / scale", 1.5e-2},
		{"               -0.25", -0.25},
		{"                   T / conforms", true},
		{"                   F", false},
		{"'RING    '           / ordering", "RING"},
		{"'it''s   '", "it's"},
	}
	for _, c := range cases {
		v, _, ok := parseValue(c.in)
		if !ok {
			t.Errorf("%q failed to parse", c.in)
			continue
		}
		if v != c.value {
			t.Errorf("%q got %v (%T) expect %v (%T)", c.in, v, v, c.value, c.value)
		}
	}
}

func uniformMap(nside int64, ordering, coordsys string, v float32) *Map {
	m := &Map{FileName: "in-memory"}
	m.Header.Set("NSIDE", nside, "healpix resolution")
	if ordering != "" {
		m.Header.Set("ORDERING", ordering, "pixel ordering")
	}
	if coordsys != "" {
		m.Header.Set("COORDSYS", coordsys, "coordinate frame")
	}
	m.Data = make([]float32, healpix.Npix(nside))
	for i := range m.Data {
		m.Data[i] = v
	}
	return m
}

func TestDescriptor(t *testing.T) {
	m := uniformMap(64, "RING", "C", 1)
	desc, err := m.Descriptor()
	if err != nil {
		t.Fatalf("got error %v", err)
	}
	if desc.Nside != 64 || desc.Order != healpix.Ring || desc.Frame != wcs.Equatorial {
		t.Errorf("got %+v", desc)
	}
	if desc.Key() != "64_RING_equatorial" {
		t.Errorf("key got %q", desc.Key())
	}

	if _, err := uniformMap(64, "", "C", 1).Descriptor(); !errors.Is(err, healpix.ErrMissingOrdering) {
		t.Errorf("missing ordering got %v", err)
	}
	if _, err := uniformMap(64, "spiral", "C", 1).Descriptor(); !errors.Is(err, healpix.ErrUnknownOrdering) {
		t.Errorf("unknown ordering got %v", err)
	}
	if _, err := uniformMap(64, "RING", "", 1).Descriptor(); !errors.Is(err, wcs.ErrMissingFrame) {
		t.Errorf("missing frame got %v", err)
	}
	if _, err := uniformMap(64, "RING", "ECLIPTIC", 1).Descriptor(); !errors.Is(err, wcs.ErrUnknownFrame) {
		t.Errorf("ecliptic frame got %v", err)
	}
}

func TestMapWriteRead(t *testing.T) {
	m := uniformMap(8, "NESTED", "G", 3.25)
	m.Data[17] = -4.5

	fileName := filepath.Join(t.TempDir(), "map.fits")
	if err := m.WriteFile(fileName); err != nil {
		t.Fatalf("write: %v", err)
	}

	back, err := ReadMap(fileName, true)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	desc, err := back.Descriptor()
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	if desc.Nside != 8 || desc.Order != healpix.Nested || desc.Frame != wcs.Galactic {
		t.Errorf("descriptor got %+v", desc)
	}
	if len(back.Data) != len(m.Data) {
		t.Fatalf("got %d pixels expect %d", len(back.Data), len(m.Data))
	}
	for i := range m.Data {
		if back.Data[i] != m.Data[i] {
			t.Fatalf("pixel %d got %f expect %f", i, back.Data[i], m.Data[i])
		}
	}
}

func TestMapHeaderOnlyMaterialize(t *testing.T) {
	m := uniformMap(8, "RING", "G", 7)
	fileName := filepath.Join(t.TempDir(), "map.fits")
	if err := m.WriteFile(fileName); err != nil {
		t.Fatalf("write: %v", err)
	}

	lazy, err := ReadMap(fileName, false)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if lazy.Data != nil {
		t.Fatal("header-only read must not load pixel data")
	}
	if _, err := lazy.Descriptor(); err != nil {
		t.Fatalf("descriptor must work without data: %v", err)
	}
	if err := lazy.Materialize(); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(lazy.Data) != int(healpix.Npix(8)) {
		t.Fatalf("got %d pixels expect %d", len(lazy.Data), healpix.Npix(8))
	}
	if lazy.Data[100] != 7 {
		t.Errorf("pixel 100 got %f expect 7", lazy.Data[100])
	}
}

func TestGridHeader(t *testing.T) {
	g := wcs.NewGrid(266.4, -28.9, wcs.Equatorial, 1.0/60, 256, 256, wcs.TAN)
	h := GridHeader(g)

	if v, _ := h.String("CTYPE1"); v != "RA---TAN" {
		t.Errorf("CTYPE1 got %q", v)
	}
	if v, _ := h.Float("CRPIX1"); v != 128.5 {
		t.Errorf("CRPIX1 got %f expect 128.5", v)
	}
	if v, _ := h.Float("CRVAL2"); v != -28.9 {
		t.Errorf("CRVAL2 got %f", v)
	}
	if v, _ := h.Float("CDELT1"); math.Abs(v+1.0/60) > 1e-12 {
		t.Errorf("CDELT1 got %f expect %f", v, -1.0/60)
	}
}

func TestImageMinMax(t *testing.T) {
	img := NewImage(2, 2)
	nan := float32(math.NaN())
	copy(img.Data, []float32{nan, -1, 3, nan})
	min, max := img.MinMax()
	if min != -1 || max != 3 {
		t.Errorf("got %f,%f expect -1,3", min, max)
	}
}
