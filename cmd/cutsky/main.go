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

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	cs "github.com/mlnoga/cutsky/internal"
	"github.com/mlnoga/cutsky/internal/cut"
	"github.com/mlnoga/cutsky/internal/fits"
	"github.com/mlnoga/cutsky/internal/rest"
	"github.com/mlnoga/cutsky/internal/wcs"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var conf = flag.String("conf", "", "read settings and map list from YAML `file`")
var maps = flag.String("maps", "", "comma-separated healpix map `files` to cut, legend is the base filename")

var npix    = flag.Int("npix", 0, "number of pixels per patch axis (default 256)")
var radius  = flag.Float64("radius", 0, "radius of the requested region [deg], alternative to -npix")
var pixsize = flag.Float64("pixsize", 0, "pixel size [arcmin] (default 1)")

var coordframe = flag.String("coordframe", "", "coordinate frame of the position and the projection, e.g. galactic or fk5 (default galactic)")
var ctype      = flag.String("ctype", "", "projection type: TAN, SIN, ARC, STG, ZEA, CAR, SFL or AIT (default TAN)")

var fitsOut = flag.Bool("fits", false, "write patches as FITS files")
var pngOut  = flag.Bool("png", false, "write patches as PNG files (default if no other output is chosen)")
var tiffOut = flag.Bool("tiff", false, "write patches as 16-bit grayscale TIFF files")
var votable = flag.Bool("votable", false, "write aperture photometry as VOTable files")
var outdir  = flag.String("outdir", "", "output `directory` (default .)")

var lowmem = flag.String("lowmem", "auto", "low memory mode: auto, on or off")
var order  = flag.Int("order", 0, "projection order: 0 nearest neighbor, 1 bilinear")
var std    = flag.Bool("std", false, "profile: also compute the standard deviation per radius bin")
var positions = flag.String("positions", "", "stack: `file` with one \"lon lat\" pair per line")

var chroot = flag.String("chroot", "", "serve: change filesystem root to `directory` (requires root)")
var setuid = flag.Int("setuid", -1, "serve: switch to this numerical user id")

var logTo   = flag.String("log", "", "also log output to `file`")
var verbose = flag.Bool("v", false, "verbose mode")
var quiet   = flag.Bool("q", false, "quiet mode")

func main() {
	start := time.Now()
	flag.Usage = func() {
		fmt.Printf(`Cutsky Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (cut|profile|stack|serve|legal|version) [lon lat]

Commands:
  cut     Cut patches around (lon,lat) from all healpix maps
  profile Extract radial profiles around (lon,lat) from all healpix maps
  stack   Stack patches at the positions given with -positions
  serve   Serve cutouts over a REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *logTo != "" {
		if err := cs.LogAlsoToFile(*logTo); err != nil {
			cs.LogFatalf("Unable to open logfile '%s'\n", *logTo)
		}
	}
	defer cs.LogSync()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			cs.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			cs.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	cfg := loadConfig()
	switch cfg.Cutsky.Verbosity {
	case "quiet", "error":
		cs.LogVerbosity = 0
	case "verbose", "debug":
		cs.LogVerbosity = 2
	}

	switch args[0] {
	case "cut":
		lon, lat := parseLonLat(args[1:])
		cmdCut(cfg, lon, lat)

	case "profile":
		lon, lat := parseLonLat(args[1:])
		cmdProfile(cfg, lon, lat)

	case "stack":
		cmdStack(cfg)

	case "serve":
		cutter := newCutter(cfg)
		rest.MakeSandbox(*chroot, *setuid)
		rest.Serve(cutter)

	case "legal":
		fmt.Print(legal + "\n")

	case "version":
		fmt.Printf("Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Printf("Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	cs.LogPrintf("\nDone after %v\n", time.Now().Sub(start))

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			cs.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			cs.LogFatal("Could not write memory profile: ", err)
		}
	}
}

// Combines command line flags, the optional configuration file and the
// built-in defaults, in that order of precedence
func loadConfig() *cs.Config {
	cfg := &cs.Config{}
	cfg.Cutsky.Npix = *npix
	cfg.Cutsky.Pixsize = *pixsize
	cfg.Cutsky.Coordframe = *coordframe
	cfg.Cutsky.Ctype = *ctype
	cfg.Cutsky.Fits = *fitsOut
	cfg.Cutsky.Png = *pngOut
	cfg.Cutsky.Votable = *votable
	cfg.Cutsky.Outdir = *outdir
	if *verbose {
		cfg.Cutsky.Verbosity = "verbose"
	} else if *quiet {
		cfg.Cutsky.Verbosity = "quiet"
	}
	if *maps != "" {
		for _, fileName := range strings.Split(*maps, ",") {
			legend := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
			cfg.Maps = append(cfg.Maps, cs.ConfigMap{Legend: legend, FileName: fileName})
		}
	}

	// look for a config file next to the working directory and in the
	// user's config directory, an explicit -conf comes first
	confFiles := []string{"cutsky.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		confFiles = append(confFiles, filepath.Join(home, ".config", "cutsky", "cutsky.yaml"))
	}
	if *conf != "" {
		confFiles = append([]string{*conf}, confFiles...)
	}
	for _, confFile := range confFiles {
		fileCfg, err := cs.ReadConfig(confFile)
		if err != nil {
			if *conf != "" && confFile == *conf {
				cs.LogFatalf("Unable to read config file '%s': %s\n", confFile, err.Error())
			}
			continue
		}
		cfg.Merge(fileCfg)
		break
	}
	cfg.Merge(cs.DefaultConfig())

	// -radius overrides -npix
	if *radius > 0 {
		cfg.Cutsky.Npix = int(*radius / (cfg.Cutsky.Pixsize / 60))
	}
	return cfg
}

func parseLonLat(args []string) (lon, lat float64) {
	if len(args) < 2 {
		cs.LogFatal("Need a longitude and latitude in degrees")
	}
	lon, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		cs.LogFatalf("Invalid longitude '%s'\n", args[0])
	}
	lat, err = strconv.ParseFloat(args[1], 64)
	if err != nil {
		cs.LogFatalf("Invalid latitude '%s'\n", args[1])
	}
	return lon, lat
}

func parseGeometry(cfg *cs.Config) (wcs.Frame, wcs.Projection) {
	frame, err := wcs.ParseFrame(cfg.Cutsky.Coordframe)
	if err != nil {
		cs.LogFatalf("Invalid coordinate frame '%s': %s\n", cfg.Cutsky.Coordframe, err.Error())
	}
	proj, err := wcs.ParseProjection(cfg.Cutsky.Ctype)
	if err != nil {
		cs.LogFatalf("Invalid projection '%s': %s\n", cfg.Cutsky.Ctype, err.Error())
	}
	return frame, proj
}

func newCutter(cfg *cs.Config) *cut.CutSky {
	if len(cfg.Maps) == 0 {
		cs.LogFatal("No healpix maps given, use -maps or -conf")
	}
	entries := make([]cut.MapEntry, 0, len(cfg.Maps))
	for _, m := range cfg.Maps {
		if m.DoCut != nil && !*m.DoCut {
			continue
		}
		entries = append(entries, cut.MapEntry{FileName: m.FileName, Legend: m.Legend, DoContour: m.DoContour})
	}
	if len(entries) == 0 {
		cs.LogFatal("All maps are excluded with doCut: false")
	}

	mode := cut.LowMemAuto
	switch *lowmem {
	case "on":
		mode = cut.LowMemOn
	case "off":
		mode = cut.LowMemOff
	}

	_, proj := parseGeometry(cfg)
	cutter, err := cut.NewCutSky(entries, cfg.Cutsky.Npix, cfg.Cutsky.Pixsize, proj, mode)
	if err != nil {
		cs.LogFatalf("Error preparing maps: %s\n", err.Error())
	}
	return cutter
}

func cmdCut(cfg *cs.Config, lon, lat float64) {
	if !cfg.Cutsky.Fits && !cfg.Cutsky.Png && !cfg.Cutsky.Votable && !*tiffOut {
		cfg.Cutsky.Png = true
	}
	frame, _ := parseGeometry(cfg)
	cutter := newCutter(cfg)

	var patches []cut.Patch
	var err error
	switch {
	case cfg.Cutsky.Votable:
		patches, err = cutter.CutPhot(lon, lat, frame, nil)
		if err == nil && cfg.Cutsky.Png {
			patches, err = cutter.CutPNG(lon, lat, frame, nil)
		}
	case cfg.Cutsky.Png:
		patches, err = cutter.CutPNG(lon, lat, frame, nil)
	default:
		patches, err = cutter.CutFITS(lon, lat, frame, nil)
	}
	if err != nil {
		cs.LogFatalf("Error cutting maps: %s\n", err.Error())
	}

	if err := os.MkdirAll(cfg.Cutsky.Outdir, 0755); err != nil {
		cs.LogFatalf("Error creating output directory '%s': %s\n", cfg.Cutsky.Outdir, err.Error())
	}
	for _, p := range patches {
		base := filepath.Join(cfg.Cutsky.Outdir, p.Legend)
		if cfg.Cutsky.Fits {
			cs.LogPrintf("Writing %s.fits\n", base)
			if err := p.Image.WriteFile(base + ".fits"); err != nil {
				cs.LogFatalf("Error writing '%s.fits': %s\n", base, err.Error())
			}
		}
		if cfg.Cutsky.Png {
			cs.LogPrintf("Writing %s.png\n", base)
			if err := os.WriteFile(base+".png", p.PNG, 0644); err != nil {
				cs.LogFatalf("Error writing '%s.png': %s\n", base, err.Error())
			}
		}
		if *tiffOut {
			cs.LogPrintf("Writing %s.tiff\n", base)
			if err := p.Image.WriteTIFF16ToFile(base+".tiff", 0, 0); err != nil {
				cs.LogFatalf("Error writing '%s.tiff': %s\n", base, err.Error())
			}
		}
		if cfg.Cutsky.Votable {
			cs.LogPrintf("Writing %s.xml\n", base)
			if err := writeVOTable(base+".xml", p.Legend, p.Phot); err != nil {
				cs.LogFatalf("Error writing '%s.xml': %s\n", base, err.Error())
			}
		}
	}
}

func cmdProfile(cfg *cs.Config, lon, lat float64) {
	frame, _ := parseGeometry(cfg)
	cutter := newCutter(cfg)

	pg := wcs.NewProfileGrid(cfg.Cutsky.Pixsize/60, cfg.Cutsky.Npix)
	if err := os.MkdirAll(cfg.Cutsky.Outdir, 0755); err != nil {
		cs.LogFatalf("Error creating output directory '%s': %s\n", cfg.Cutsky.Outdir, err.Error())
	}

	for _, group := range cutter.Groups {
		for _, m := range group.Maps {
			if err := m.Materialize(); err != nil {
				cs.LogFatalf("Error loading '%s': %s\n", m.FileName, err.Error())
			}
			profile, stdProfile, err := cut.HPToProfile(m.Map, lon, lat, frame, pg, *std)
			if err != nil {
				cs.LogFatalf("Error profiling '%s': %s\n", m.FileName, err.Error())
			}

			fileName := filepath.Join(cfg.Cutsky.Outdir, m.Legend+"_profile.txt")
			cs.LogPrintf("Writing %s\n", fileName)
			if err := writeProfile(fileName, pg, profile, stdProfile); err != nil {
				cs.LogFatalf("Error writing '%s': %s\n", fileName, err.Error())
			}

			if cfg.Cutsky.Fits {
				img := &fits.Image{Width: len(profile), Height: 1, Data: make([]float32, len(profile)), Header: fits.ProfileHeader(pg)}
				for i, v := range profile {
					img.Data[i] = float32(v)
				}
				fileName = filepath.Join(cfg.Cutsky.Outdir, m.Legend+"_profile.fits")
				cs.LogPrintf("Writing %s\n", fileName)
				if err := img.WriteFile(fileName); err != nil {
					cs.LogFatalf("Error writing '%s': %s\n", fileName, err.Error())
				}
			}
		}
	}
}

func cmdStack(cfg *cs.Config) {
	if *positions == "" {
		cs.LogFatal("Need a -positions file with one \"lon lat\" pair per line")
	}
	lons, lats, err := readPositions(*positions)
	if err != nil {
		cs.LogFatalf("Error reading positions '%s': %s\n", *positions, err.Error())
	}

	frame, proj := parseGeometry(cfg)
	cutter := newCutter(cfg)

	if err := os.MkdirAll(cfg.Cutsky.Outdir, 0755); err != nil {
		cs.LogFatalf("Error creating output directory '%s': %s\n", cfg.Cutsky.Outdir, err.Error())
	}
	for _, group := range cutter.Groups {
		for _, m := range group.Maps {
			if err := m.Materialize(); err != nil {
				cs.LogFatalf("Error loading '%s': %s\n", m.FileName, err.Error())
			}
			imgs, err := cut.HPStack(m.Map, lons, lats, frame,
				[]float64{cfg.Cutsky.Pixsize / 60}, cfg.Cutsky.Npix, proj, *order, false)
			if err != nil {
				cs.LogFatalf("Error stacking '%s': %s\n", m.FileName, err.Error())
			}

			fileName := filepath.Join(cfg.Cutsky.Outdir, m.Legend+"_stack.fits")
			cs.LogPrintf("Writing %s\n", fileName)
			if err := imgs[0].WriteFile(fileName); err != nil {
				cs.LogFatalf("Error writing '%s': %s\n", fileName, err.Error())
			}
		}
	}
}

// Reads stacking positions, one "lon lat" pair in degrees per line.
// Blank lines and lines starting with # are skipped.
func readPositions(fileName string) (lons, lats []float64, err error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("invalid position line %q", line)
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, nil, err
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, err
		}
		lons = append(lons, lon)
		lats = append(lats, lat)
	}
	return lons, lats, scanner.Err()
}

func writeProfile(fileName string, pg *wcs.ProfileGrid, profile, stdProfile []float64) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	if stdProfile != nil {
		fmt.Fprintf(w, "# radius[deg] mean std\n")
	} else {
		fmt.Fprintf(w, "# radius[deg] mean\n")
	}
	for i, v := range profile {
		if stdProfile != nil {
			fmt.Fprintf(w, "%g %g %g\n", pg.PixToWorld(float64(i)), v, stdProfile[i])
		} else {
			fmt.Fprintf(w, "%g %g\n", pg.PixToWorld(float64(i)), v)
		}
	}
	return nil
}

// Writes an aperture photometry result as a minimal VOTable
func writeVOTable(fileName, legend string, phot float64) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, `<?xml version="1.0" encoding="UTF-8"?>
<VOTABLE version="1.3" xmlns="http://www.ivoa.net/xml/VOTable/v1.3">
 <RESOURCE>
  <TABLE name="%s">
   <FIELD name="aperture_sum" datatype="double"/>
   <DATA>
    <TABLEDATA>
     <TR><TD>%g</TD></TR>
    </TABLEDATA>
   </DATA>
  </TABLE>
 </RESOURCE>
</VOTABLE>
`, legend, phot)
	return err
}
