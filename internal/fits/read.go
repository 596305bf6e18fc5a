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
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mlnoga/cutsky/internal/healpix"
)

const fitsBlockSize int = 2880    // block size of FITS header and data units
const headerLineSize int = 80     // line size of a FITS header card
const linesPerBlock = fitsBlockSize / headerLineSize

// Reads a healpix map from the file with the given name, decompressing
// gzip if a .gz or .gzip suffix is present. The map is looked for in
// the primary HDU and the first extension, whichever carries an NSIDE;
// both image and single-column binary table extensions are understood.
// Reads metadata only (fast) if readData is false.
func ReadMap(fileName string, readData bool) (*Map, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".gz" || lExt == ".gzip" {
		if r, err = gzip.NewReader(f); err != nil {
			return nil, err
		}
	}

	m := &Map{FileName: fileName}
	return m, m.Read(r, readData)
}

// Reads a healpix map in FITS format from the given reader
func (m *Map) Read(r io.Reader, readData bool) error {
	hdr, err := readHeader(r, m.FileName)
	if err != nil {
		return err
	}

	if _, ok := hdr.Int("NSIDE"); !ok {
		// map lives in the first extension; skip primary data if any
		if err := skipData(r, hdr); err != nil {
			return err
		}
		if hdr, err = readHeader(r, m.FileName); err != nil {
			return err
		}
	}
	m.Header = *hdr

	if !readData {
		return nil
	}
	return m.ReadData(r)
}

// Reads the pixel vector following an already-parsed map header
func (m *Map) ReadData(r io.Reader) error {
	if xtension, _ := m.Header.String("XTENSION"); strings.TrimSpace(xtension) == "BINTABLE" {
		return m.readBintableData(r)
	}
	return m.readImageData(r)
}

// Materializes the data of a header-only map by re-reading its file
func (m *Map) Materialize() error {
	if m.Data != nil {
		return nil
	}
	full, err := ReadMap(m.FileName, true)
	if err != nil {
		return err
	}
	m.Data = full.Data
	return nil
}

var reTform *regexp.Regexp = regexp.MustCompile(`^\s*(\d*)([LBIJKED])`)

// Reads the first column of a binary table extension into a flat
// float32 vector. Healpix maps store the pixel vector as repeat-count
// cells of one column.
func (m *Map) readBintableData(r io.Reader) error {
	rowBytes, ok := m.Header.Int("NAXIS1")
	if !ok {
		return fmt.Errorf("%s: no NAXIS1 in binary table header", m.FileName)
	}
	rows, ok := m.Header.Int("NAXIS2")
	if !ok {
		return fmt.Errorf("%s: no NAXIS2 in binary table header", m.FileName)
	}
	tform, ok := m.Header.String("TFORM1")
	if !ok {
		return fmt.Errorf("%s: no TFORM1 in binary table header", m.FileName)
	}
	groups := reTform.FindStringSubmatch(tform)
	if groups == nil {
		return fmt.Errorf("%s: cannot parse TFORM1 value %q", m.FileName, tform)
	}
	repeat := int64(1)
	if groups[1] != "" {
		repeat, _ = strconv.ParseInt(groups[1], 10, 64)
	}

	var valBytes int64
	switch groups[2] {
	case "E":
		valBytes = 4
	case "D":
		valBytes = 8
	default:
		return fmt.Errorf("%s: unsupported binary table value type %q", m.FileName, groups[2])
	}
	colBytes := repeat * valBytes
	if colBytes > rowBytes {
		return fmt.Errorf("%s: TFORM1 %q exceeds row size %d", m.FileName, tform, rowBytes)
	}

	m.Data = make([]float32, 0, rows*repeat)
	rowBuf := make([]byte, rowBytes)
	for row := int64(0); row < rows; row++ {
		if _, err := io.ReadFull(r, rowBuf); err != nil {
			return fmt.Errorf("%s: %s", m.FileName, err.Error())
		}
		for i := int64(0); i < repeat; i++ {
			if valBytes == 4 {
				bits := binary.BigEndian.Uint32(rowBuf[i*4:])
				m.Data = append(m.Data, math.Float32frombits(bits))
			} else {
				bits := binary.BigEndian.Uint64(rowBuf[i*8:])
				m.Data = append(m.Data, float32(math.Float64frombits(bits)))
			}
		}
	}
	return m.checkLength()
}

// Reads an image extension holding the pixel vector as a 1-D array
func (m *Map) readImageData(r io.Reader) error {
	bitpix, ok := m.Header.Int("BITPIX")
	if !ok {
		return fmt.Errorf("%s: no BITPIX in header", m.FileName)
	}
	naxis, _ := m.Header.Int("NAXIS")
	pixels := int64(1)
	for i := int64(1); i <= naxis; i++ {
		n, ok := m.Header.Int("NAXIS" + strconv.FormatInt(i, 10))
		if !ok {
			return fmt.Errorf("%s: no NAXIS%d in header", m.FileName, i)
		}
		pixels *= n
	}

	bzero, _ := m.Header.Float("BZERO")
	bscale, ok := m.Header.Float("BSCALE")
	if !ok {
		bscale = 1
	}

	valBytes := int64(bitpix)
	if valBytes < 0 {
		valBytes = -valBytes
	}
	valBytes /= 8
	buf := make([]byte, pixels*valBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%s: %s", m.FileName, err.Error())
	}

	m.Data = make([]float32, pixels)
	switch bitpix {
	case -32:
		for i := range m.Data {
			bits := binary.BigEndian.Uint32(buf[i*4:])
			m.Data[i] = float32(float64(math.Float32frombits(bits))*bscale + bzero)
		}
	case -64:
		for i := range m.Data {
			bits := binary.BigEndian.Uint64(buf[i*8:])
			m.Data[i] = float32(math.Float64frombits(bits)*bscale + bzero)
		}
	case 16:
		for i := range m.Data {
			v := int16(binary.BigEndian.Uint16(buf[i*2:]))
			m.Data[i] = float32(float64(v)*bscale + bzero)
		}
	case 32:
		for i := range m.Data {
			v := int32(binary.BigEndian.Uint32(buf[i*4:]))
			m.Data[i] = float32(float64(v)*bscale + bzero)
		}
	case 64:
		for i := range m.Data {
			v := int64(binary.BigEndian.Uint64(buf[i*8:]))
			m.Data[i] = float32(float64(v)*bscale + bzero)
		}
	default:
		return fmt.Errorf("%s: unknown BITPIX value %d", m.FileName, bitpix)
	}
	return m.checkLength()
}

// Verifies that the pixel vector length matches 12*NSIDE^2
func (m *Map) checkLength() error {
	nside, ok := m.Header.Int("NSIDE")
	if !ok {
		return nil
	}
	if int64(len(m.Data)) != healpix.Npix(nside) {
		return fmt.Errorf("%s: %d pixels do not match NSIDE %d", m.FileName, len(m.Data), nside)
	}
	return nil
}

var reParser *regexp.Regexp = compileRE() // parser for FITS header card values

func compileRE() *regexp.Regexp {
	const spaces = `\s*`
	const stringValue = `'(?P<str>([^']|'')*)'`
	const boolValue = `(?P<bool>[TF])`
	const floatValue = `(?P<float>[+-]?([0-9]*\.[0-9]+|[0-9]+\.[0-9]*)([eEdD][+-]?[0-9]+)?)`
	const intValue = `(?P<int>[+-]?[0-9]+)`
	const value = `(` + stringValue + `|` + boolValue + `|` + floatValue + `|` + intValue + `)`
	const comment = `(/(?P<comment>.*))?`
	return regexp.MustCompile(`^` + spaces + value + spaces + comment + `$`)
}

// Reads one FITS header, consuming whole 2880-byte blocks up to and
// including the one carrying the END card
func readHeader(r io.Reader, fileName string) (*Header, error) {
	h := &Header{}
	block := make([]byte, fitsBlockSize)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("%s: %s", fileName, err.Error())
		}
		for l := 0; l < linesPerBlock; l++ {
			line := block[l*headerLineSize : (l+1)*headerLineSize]
			key := strings.TrimRight(string(line[0:8]), " ")
			switch key {
			case "END":
				return h, nil
			case "", "COMMENT", "HISTORY":
				continue
			}
			if line[8] != '=' {
				continue
			}
			value, comment, ok := parseValue(string(line[9:]))
			if !ok {
				continue
			}
			h.Cards = append(h.Cards, Card{key, value, comment})
		}
	}
}

// Parses the value and comment part of a header card
func parseValue(s string) (value interface{}, comment string, ok bool) {
	groups := reParser.FindStringSubmatch(s)
	if groups == nil {
		return nil, "", false
	}
	names := reParser.SubexpNames()
	vals := map[string]string{}
	for i, name := range names {
		if i > 0 && name != "" && groups[i] != "" {
			vals[name] = groups[i]
		}
	}
	comment = strings.TrimSpace(vals["comment"])

	if s, found := vals["str"]; found {
		return strings.TrimRight(strings.ReplaceAll(s, "''", "'"), " "), comment, true
	}
	if b, found := vals["bool"]; found {
		return b == "T", comment, true
	}
	if f, found := vals["float"]; found {
		f = strings.ReplaceAll(strings.ReplaceAll(f, "d", "e"), "D", "E")
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, "", false
		}
		return v, comment, true
	}
	if i, found := vals["int"]; found {
		v, err := strconv.ParseInt(i, 10, 64)
		if err != nil {
			return nil, "", false
		}
		return v, comment, true
	}
	return nil, "", false
}

// Skips the data blocks of an already-parsed HDU
func skipData(r io.Reader, h *Header) error {
	bitpix, _ := h.Int("BITPIX")
	naxis, _ := h.Int("NAXIS")
	if naxis == 0 {
		return nil
	}
	bytes := int64(1)
	for i := int64(1); i <= naxis; i++ {
		n, ok := h.Int("NAXIS" + strconv.FormatInt(i, 10))
		if !ok {
			return fmt.Errorf("no NAXIS%d in header", i)
		}
		bytes *= n
	}
	if bitpix < 0 {
		bitpix = -bitpix
	}
	bytes *= bitpix / 8
	blocks := (bytes + int64(fitsBlockSize) - 1) / int64(fitsBlockSize)
	_, err := io.CopyN(io.Discard, r, blocks*int64(fitsBlockSize))
	return err
}
