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
	"fmt"
	"sort"

	"github.com/mlnoga/cutsky/internal/fits"
	"github.com/mlnoga/cutsky/internal/healpix"
)

// A MapEntry names one healpix map file and its presentation options
type MapEntry struct {
	FileName  string
	Legend    string
	DoContour bool
}

// A SkyMap is a loaded (or header-only) healpix map with its
// presentation options
type SkyMap struct {
	*fits.Map
	Legend    string
	DoContour bool
}

// A MapGroup bundles sky maps sharing one healpix geometry, so that
// the pixel mapping is computed once per group
type MapGroup struct {
	Key  string
	Desc healpix.Descriptor
	Maps []*SkyMap
}

// Groups sky maps by their healpix geometry key "nside_ordering_frame",
// keeping groups in order of first appearance. Maps with incomplete
// healpix headers abort with an error.
func GroupMaps(maps []*SkyMap) ([]*MapGroup, error) {
	if len(maps) == 0 {
		return nil, ErrNoInput
	}
	var groups []*MapGroup
	byKey := map[string]*MapGroup{}
	for _, m := range maps {
		desc, err := m.Descriptor()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.FileName, err)
		}
		key := desc.Key()
		g, ok := byKey[key]
		if !ok {
			g = &MapGroup{Key: key, Desc: desc}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.Maps = append(g.Maps, m)
	}
	return groups, nil
}

// Converts the legacy keyed-by-legend map description into the flat
// entry list used by NewCutSky
func ToNewMaps(old map[string]map[string]interface{}) []MapEntry {
	legends := make([]string, 0, len(old))
	for legend := range old {
		legends = append(legends, legend)
	}
	sort.Strings(legends)

	entries := []MapEntry{}
	for _, legend := range legends {
		opts := old[legend]
		e := MapEntry{Legend: legend}
		if fn, ok := opts["filename"].(string); ok {
			e.FileName = fn
		}
		if dc, ok := opts["doContour"].(bool); ok {
			e.DoContour = dc
		}
		entries = append(entries, e)
	}
	return entries
}
