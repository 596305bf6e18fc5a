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
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"strings"
)

// Writes an image as a FITS file with the given name, gzipping if the
// name ends in .gz or .gzip
func (img *Image) WriteFile(fileName string) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".gz" || lExt == ".gzip" {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		w = gw
	}
	buf := bufio.NewWriter(w)
	defer buf.Flush()
	return img.Write(buf)
}

// Writes an image in FITS format to the given writer. The primary HDU
// holds the pixel data as 32-bit big-endian floats; NaN blank pixels
// are preserved.
func (img *Image) Write(w io.Writer) error {
	length := 0
	length += writeBool(w, "SIMPLE", true, "file conforms to FITS standard")
	length += writeInt(w, "BITPIX", -32, "number of bits per data pixel")
	length += writeInt(w, "NAXIS", 2, "number of data axes")
	length += writeInt(w, "NAXIS1", int64(img.Width), "length of data axis 1")
	length += writeInt(w, "NAXIS2", int64(img.Height), "length of data axis 2")

	for _, c := range img.Header.Cards {
		if structuralKey(c.Key) {
			continue
		}
		switch v := c.Value.(type) {
		case bool:
			length += writeBool(w, c.Key, v, c.Comment)
		case int:
			length += writeInt(w, c.Key, int64(v), c.Comment)
		case int64:
			length += writeInt(w, c.Key, v, c.Comment)
		case float64:
			length += writeFloat(w, c.Key, v, c.Comment)
		case string:
			length += writeString(w, c.Key, v, c.Comment)
		}
	}
	length += writeEnd(w)
	pad(w, length, ' ')

	length = 0
	valBuf := make([]byte, 4)
	for _, v := range img.Data {
		binary.BigEndian.PutUint32(valBuf, math.Float32bits(v))
		if _, err := w.Write(valBuf); err != nil {
			return err
		}
		length += 4
	}
	pad(w, length, 0)
	return nil
}

// Keys describing the HDU structure itself, emitted by the writers and
// skipped when copying header cards
func structuralKey(key string) bool {
	switch key {
	case "SIMPLE", "BITPIX", "NAXIS", "NAXIS1", "NAXIS2", "NAXIS3", "XTENSION", "PCOUNT", "GCOUNT", "TFIELDS":
		return true
	}
	return false
}

func writeBool(w io.Writer, key string, value bool, comment string) int {
	v := "F"
	if value {
		v = "T"
	}
	return writeLine(w, fmt.Sprintf("%-8s= %20s / %-45s", key, v, trim(comment, 45)))
}

func writeInt(w io.Writer, key string, value int64, comment string) int {
	return writeLine(w, fmt.Sprintf("%-8s= %20d / %-45s", key, value, trim(comment, 45)))
}

func writeFloat(w io.Writer, key string, value float64, comment string) int {
	return writeLine(w, fmt.Sprintf("%-8s= %20g / %-45s", key, value, trim(comment, 45)))
}

func writeString(w io.Writer, key, value, comment string) int {
	v := fmt.Sprintf("'%s'", trim(value, 18))
	return writeLine(w, fmt.Sprintf("%-8s= %20s / %-45s", key, v, trim(comment, 45)))
}

func writeEnd(w io.Writer) int {
	return writeLine(w, fmt.Sprintf("%-80s", "END"))
}

func writeLine(w io.Writer, line string) int {
	w.Write([]byte(line)[0:headerLineSize])
	return headerLineSize
}

func trim(s string, l int) string {
	if len(s) > l {
		return s[0:l]
	}
	return s
}

// Pads the current HDU to a whole number of FITS blocks
func pad(w io.Writer, length int, filler byte) {
	rem := length % fitsBlockSize
	if rem == 0 {
		return
	}
	block := make([]byte, fitsBlockSize-rem)
	if filler != 0 {
		for i := range block {
			block[i] = filler
		}
	}
	w.Write(block)
}
