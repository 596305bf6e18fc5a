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
	"math"
	"path/filepath"
	"testing"

	"github.com/mlnoga/cutsky/internal/fits"
	"github.com/mlnoga/cutsky/internal/healpix"
	"github.com/mlnoga/cutsky/internal/wcs"
)

func uniformMap(nside int64, ordering, coordsys string, v float32) *fits.Map {
	m := &fits.Map{FileName: "in-memory"}
	m.Header.Set("NSIDE", nside, "healpix resolution")
	m.Header.Set("ORDERING", ordering, "pixel ordering")
	m.Header.Set("COORDSYS", coordsys, "coordinate frame")
	m.Data = make([]float32, healpix.Npix(nside))
	for i := range m.Data {
		m.Data[i] = v
	}
	return m
}

func TestPixelMapping(t *testing.T) {
	g := wcs.NewGrid(0, 0, wcs.Equatorial, 1.0/60, 64, 64, wcs.TAN)
	desc := healpix.Descriptor{Nside: 64, Order: healpix.Ring, Frame: wcs.Equatorial}
	m := HPToWCSIpx(g, desc)

	if m.Width != 64 || m.Height != 64 || len(m.Mask) != 64*64 {
		t.Fatalf("mapping shape %dx%d mask %d", m.Width, m.Height, len(m.Mask))
	}
	inside := 0
	for _, ok := range m.Mask {
		if ok {
			inside++
		}
	}
	if inside != len(m.Ipix) {
		t.Fatalf("%d flagged pixels but %d indices", inside, len(m.Ipix))
	}
	for _, p := range m.Ipix {
		if p < 0 || p >= healpix.Npix(64) {
			t.Fatalf("index %d out of range", p)
		}
	}

	// recomputing yields the same mapping
	m2 := HPToWCSIpx(g, desc)
	for i := range m.Mask {
		if m.Mask[i] != m2.Mask[i] {
			t.Fatal("mapping is not deterministic")
		}
	}
	for i := range m.Ipix {
		if m.Ipix[i] != m2.Ipix[i] {
			t.Fatal("mapping indices are not deterministic")
		}
	}
}

// a uniform all-sky map must project to a uniform patch, for both
// nearest neighbor and bilinear interpolation
func TestHPToWCSUniform(t *testing.T) {
	m := uniformMap(64, "RING", "C", 1)
	g := wcs.NewGrid(0, 0, wcs.Equatorial, 1.0/60, 256, 256, wcs.TAN)

	for order := 0; order <= 1; order++ {
		data, err := HPToWCS(m, g, order)
		if err != nil {
			t.Fatalf("order %d: %v", order, err)
		}
		if len(data) != 256*256 {
			t.Fatalf("order %d: got %d pixels", order, len(data))
		}
		for i, v := range data {
			if math.IsNaN(float64(v)) {
				t.Fatalf("order %d: pixel %d is NaN inside a 4 degree TAN patch", order, i)
			}
			if math.Abs(float64(v)-1) > 1e-6 {
				t.Fatalf("order %d: pixel %d got %f expect 1", order, i, v)
			}
		}
	}
}

func TestHPProject(t *testing.T) {
	m := uniformMap(64, "NESTED", "G", 7)
	img, err := HPProject(m, 30, -45, wcs.Galactic, 1.0/60, 128, wcs.TAN, 1)
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 128 || img.Height != 128 || len(img.Data) != 128*128 {
		t.Fatalf("image shape %dx%d with %d pixels", img.Width, img.Height, len(img.Data))
	}
	for i, v := range img.Data {
		if math.Abs(float64(v)-7) > 1e-6 {
			t.Fatalf("pixel %d got %f expect 7", i, v)
		}
	}
	if v, ok := img.Header.Float("CRVAL1"); !ok || v != 30 {
		t.Errorf("CRVAL1 got %f %v expect 30", v, ok)
	}
	if s, ok := img.Header.String("CTYPE1"); !ok || s != "GLON-TAN" {
		t.Errorf("CTYPE1 got %s expect GLON-TAN", s)
	}
}

func TestHPToWCSUnsupportedOrder(t *testing.T) {
	m := uniformMap(64, "RING", "C", 1)
	g := wcs.NewGrid(0, 0, wcs.Equatorial, 1.0/60, 16, 16, wcs.TAN)
	if _, err := HPToWCS(m, g, 2); !errors.Is(err, ErrUnsupportedOrder) {
		t.Errorf("order 2 got %v expect ErrUnsupportedOrder", err)
	}
}

// nearest neighbor and bilinear must agree closely on a smooth map
func TestHPToWCSOrdersAgree(t *testing.T) {
	nside := int64(64)
	m := uniformMap(nside, "RING", "G", 0)
	for p := int64(0); p < healpix.Npix(nside); p++ {
		theta, _ := healpix.PixToAng(nside, healpix.Ring, p)
		m.Data[p] = float32(math.Cos(theta))
	}

	g := wcs.NewGrid(80, 30, wcs.Galactic, 2.0/60, 64, 64, wcs.TAN)
	nn, err := HPToWCS(m, g, 0)
	if err != nil {
		t.Fatal(err)
	}
	bl, err := HPToWCS(m, g, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := range nn {
		if math.Abs(float64(nn[i]-bl[i])) > 0.05 {
			t.Fatalf("pixel %d nearest %f bilinear %f differ too much", i, nn[i], bl[i])
		}
	}
}

func TestGroupMaps(t *testing.T) {
	a := &SkyMap{Map: uniformMap(64, "RING", "G", 1), Legend: "a"}
	b := &SkyMap{Map: uniformMap(64, "RING", "G", 2), Legend: "b"}
	c := &SkyMap{Map: uniformMap(128, "NESTED", "C", 3), Legend: "c"}

	groups, err := GroupMaps([]*SkyMap{a, c, b})
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups expect 2", len(groups))
	}
	if groups[0].Key != "64_RING_galactic" || len(groups[0].Maps) != 2 {
		t.Errorf("group 0 got %q with %d maps", groups[0].Key, len(groups[0].Maps))
	}
	if groups[1].Key != "128_NESTED_equatorial" || len(groups[1].Maps) != 1 {
		t.Errorf("group 1 got %q with %d maps", groups[1].Key, len(groups[1].Maps))
	}

	if _, err := GroupMaps(nil); !errors.Is(err, ErrNoInput) {
		t.Errorf("empty input got %v expect ErrNoInput", err)
	}

	bad := &SkyMap{Map: uniformMap(64, "", "G", 1), Legend: "bad"}
	if _, err := GroupMaps([]*SkyMap{bad}); !errors.Is(err, healpix.ErrMissingOrdering) {
		t.Errorf("bad map got %v expect ErrMissingOrdering", err)
	}
}

func TestToNewMaps(t *testing.T) {
	old := map[string]map[string]interface{}{
		"dust": {"filename": "dust.fits", "doContour": true},
		"cmb":  {"filename": "cmb.fits"},
	}
	entries := ToNewMaps(old)
	if len(entries) != 2 {
		t.Fatalf("got %d entries expect 2", len(entries))
	}
	if entries[0].Legend != "cmb" || entries[0].FileName != "cmb.fits" || entries[0].DoContour {
		t.Errorf("entry 0 got %+v", entries[0])
	}
	if entries[1].Legend != "dust" || !entries[1].DoContour {
		t.Errorf("entry 1 got %+v", entries[1])
	}
}

func writeTestMaps(t *testing.T) []MapEntry {
	t.Helper()
	dir := t.TempDir()
	entries := []MapEntry{}
	for i, name := range []string{"one", "two"} {
		m := uniformMap(8, "RING", "G", float32(i+1))
		fileName := filepath.Join(dir, name+".fits")
		if err := m.WriteFile(fileName); err != nil {
			t.Fatal(err)
		}
		entries = append(entries, MapEntry{FileName: fileName, Legend: name})
	}
	return entries
}

func TestCutSky(t *testing.T) {
	entries := writeTestMaps(t)
	c, err := NewCutSky(entries, 32, 15, wcs.TAN, LowMemOff)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Groups) != 1 || len(c.Groups[0].Maps) != 2 {
		t.Fatalf("got %d groups", len(c.Groups))
	}

	patches, err := c.CutFITS(30, 40, wcs.Galactic, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 2 {
		t.Fatalf("got %d patches expect 2", len(patches))
	}
	for i, p := range patches {
		want := float32(i + 1)
		for j, v := range p.Image.Data {
			if v != want {
				t.Fatalf("patch %s pixel %d got %f expect %f", p.Legend, j, v, want)
			}
		}
		if legend, _ := p.Image.Header.String("LEGEND"); legend != p.Legend {
			t.Errorf("patch %s header legend %q", p.Legend, legend)
		}
	}

	// same position hits the cache
	again, err := c.CutFITS(30, 40, wcs.Galactic, nil)
	if err != nil {
		t.Fatal(err)
	}
	if &again[0] != &patches[0] {
		t.Error("repeated cut must return the cached patches")
	}

	// a new position invalidates it
	moved, err := c.CutFITS(31, 40, wcs.Galactic, nil)
	if err != nil {
		t.Fatal(err)
	}
	if &moved[0] == &patches[0] {
		t.Error("new position must recut")
	}

	// selection by legend
	sel, err := c.CutFITS(30, 40, wcs.Galactic, []string{"two"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sel) != 1 || sel[0].Legend != "two" {
		t.Fatalf("selection got %d patches", len(sel))
	}
}

func TestCutSkyLowMem(t *testing.T) {
	entries := writeTestMaps(t)
	c, err := NewCutSky(entries, 16, 30, wcs.TAN, LowMemOn)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range c.Groups[0].Maps {
		if m.Data != nil {
			t.Fatal("low memory mode must not preload pixel data")
		}
	}

	patches, err := c.CutFITS(0, 0, wcs.Galactic, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 2 {
		t.Fatalf("got %d patches expect 2", len(patches))
	}
	for _, m := range c.Groups[0].Maps {
		if m.Data != nil {
			t.Fatal("low memory mode must release pixel data after the cut")
		}
	}
}

func TestCutPNGAndPhot(t *testing.T) {
	entries := writeTestMaps(t)
	c, err := NewCutSky(entries, 16, 30, wcs.TAN, LowMemOff)
	if err != nil {
		t.Fatal(err)
	}

	patches, err := c.CutPNG(10, -20, wcs.Galactic, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range patches {
		if len(p.PNG) == 0 {
			t.Errorf("patch %s has no PNG", p.Legend)
		}
	}

	// photometry on a uniform patch is zero after median subtraction
	patches, err = c.CutPhot(10, -20, wcs.Galactic, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range patches {
		if math.Abs(p.Phot) > 1e-6 {
			t.Errorf("patch %s phot got %f expect 0", p.Legend, p.Phot)
		}
	}
}

func TestHPToProfileUniform(t *testing.T) {
	m := uniformMap(128, "RING", "G", 4)
	pg := wcs.NewProfileGrid(1, 3) // 1 degree bins

	profile, std, err := HPToProfile(m, 120, -45, wcs.Galactic, pg, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(profile) != 3 || len(std) != 3 {
		t.Fatalf("got %d/%d bins expect 3", len(profile), len(std))
	}
	for i := range profile {
		if math.Abs(profile[i]-4) > 1e-6 {
			t.Errorf("bin %d mean got %f expect 4", i, profile[i])
		}
		if math.Abs(std[i]) > 1e-6 {
			t.Errorf("bin %d std got %f expect 0", i, std[i])
		}
	}
}

// the annuli must tile the outermost disc without overlap
func TestHPToProfileAnnuli(t *testing.T) {
	nside := int64(64)
	m := uniformMap(nside, "RING", "G", 0)
	for p := range m.Data {
		m.Data[p] = float32(p)
	}
	pg := wcs.NewProfileGrid(1, 4)

	theta := (90 - 30.0) * math.Pi / 180
	phi := 60.0 * math.Pi / 180
	edges := pg.BinEdges()
	outer := healpix.QueryDisc(nside, healpix.Ring, theta, phi, edges[len(edges)-1]*math.Pi/180)

	// sum over annuli equals sum over the outer disc
	profileSum := 0.0
	profile, _, err := HPToProfile(m, 60, 30, wcs.Galactic, pg, false)
	if err != nil {
		t.Fatal(err)
	}
	counts := 0
	for i, mean := range profile {
		inner := healpix.QueryDisc(nside, healpix.Ring, theta, phi, edges[i]*math.Pi/180)
		outerI := healpix.QueryDisc(nside, healpix.Ring, theta, phi, edges[i+1]*math.Pi/180)
		n := len(outerI) - len(inner)
		if n > 0 {
			profileSum += mean * float64(n)
			counts += n
		}
	}
	discSum := 0.0
	for _, p := range outer {
		discSum += float64(m.Data[p])
	}
	if counts != len(outer) {
		t.Errorf("annuli cover %d pixels, outer disc has %d", counts, len(outer))
	}
	if math.Abs(profileSum-discSum) > math.Abs(discSum)*1e-9 {
		t.Errorf("annuli sum %f disc sum %f", profileSum, discSum)
	}
}

func TestWCSToProfileUniform(t *testing.T) {
	g := wcs.NewGrid(0, 0, wcs.Galactic, 1.0/60, 64, 64, wcs.TAN)
	img := fits.NewImage(64, 64)
	for i := range img.Data {
		img.Data[i] = 2
	}
	pg := wcs.NewProfileGrid(5.0/60, 6)
	profile := WCSToProfile(img, g, pg)
	if len(profile) != 6 {
		t.Fatalf("got %d bins expect 6", len(profile))
	}
	for i, v := range profile {
		if math.IsNaN(v) {
			continue // bins beyond the patch corner may be empty
		}
		if math.Abs(v-2) > 1e-6 {
			t.Errorf("bin %d got %f expect 2", i, v)
		}
	}
	if math.IsNaN(profile[0]) {
		t.Error("innermost bin must not be empty")
	}
}

func TestHPStack(t *testing.T) {
	m := uniformMap(16, "RING", "G", 3)
	lons := []float64{10, 100, 250}
	lats := []float64{-30, 0, 60}

	// mean of uniform cutouts is uniform
	imgs, err := HPStack(m, lons, lats, wcs.Galactic, []float64{0.5}, 16, wcs.TAN, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(imgs) != 1 {
		t.Fatalf("got %d images expect 1", len(imgs))
	}
	for i, v := range imgs[0].Data {
		if math.Abs(float64(v)-3) > 1e-6 {
			t.Fatalf("mean pixel %d got %f expect 3", i, v)
		}
	}

	// keep mode returns the individual cutouts
	imgs, err = HPStack(m, lons, lats, wcs.Galactic, []float64{0.5}, 16, wcs.TAN, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(imgs) != 3 {
		t.Fatalf("keep mode got %d images expect 3", len(imgs))
	}
	if v, _ := imgs[1].Header.Float("CRVAL1"); v != 100 {
		t.Errorf("cutout 1 CRVAL1 got %f expect 100", v)
	}

	// mismatched pixel scales
	if _, err := HPStack(m, lons, lats, wcs.Galactic, []float64{0.5, 0.5}, 16, wcs.TAN, 0, false); err == nil {
		t.Error("two pixel scales for three positions must fail")
	}
}

func TestPhotPointSource(t *testing.T) {
	img := fits.NewImage(33, 33)
	// flat background of 5 with a single bright pixel at the center
	for i := range img.Data {
		img.Data[i] = 5
	}
	img.Data[16*33+16] = 105
	got := Phot(img, 4)
	if math.Abs(got-100) > 1e-3 {
		t.Errorf("phot got %f expect 100", got)
	}
}
