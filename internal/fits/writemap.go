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
	"encoding/binary"
	"io"
	"math"
	"os"
)

// Writes a healpix map as a FITS file with the pixel vector in the
// primary HDU. Not the binary table layout most archives use, but
// readable by this package and by healpy.
func (m *Map) WriteFile(fileName string) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	defer buf.Flush()
	return m.Write(buf)
}

func (m *Map) Write(w io.Writer) error {
	length := 0
	length += writeBool(w, "SIMPLE", true, "file conforms to FITS standard")
	length += writeInt(w, "BITPIX", -32, "number of bits per data pixel")
	length += writeInt(w, "NAXIS", 1, "number of data axes")
	length += writeInt(w, "NAXIS1", int64(len(m.Data)), "length of data axis 1")

	for _, c := range m.Header.Cards {
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
	for _, v := range m.Data {
		binary.BigEndian.PutUint32(valBuf, math.Float32bits(v))
		if _, err := w.Write(valBuf); err != nil {
			return err
		}
		length += 4
	}
	pad(w, length, 0)
	return nil
}
