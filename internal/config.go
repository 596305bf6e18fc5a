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

package internal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Cutout geometry and map list, loadable from a YAML file. Zero values
// mean "not set" so that command line flags can override per field.
type Config struct {
	Cutsky struct {
		Npix       int     `yaml:"npix"`
		Pixsize    float64 `yaml:"pixsize"` // [arcmin]
		Coordframe string  `yaml:"coordframe"`
		Ctype      string  `yaml:"ctype"`
		Verbosity  string  `yaml:"verbosity"` // quiet, normal or verbose
		Fits       bool    `yaml:"fits"`
		Png        bool    `yaml:"png"`
		Votable    bool    `yaml:"votable"`
		Outdir     string  `yaml:"outdir"`
	} `yaml:"cutsky"`
	Maps []ConfigMap `yaml:"maps"`
}

// One healpix map in the configuration file. DoCut defaults to true
// when absent.
type ConfigMap struct {
	Legend    string `yaml:"legend"`
	FileName  string `yaml:"filename"`
	DoCut     *bool  `yaml:"doCut"`
	DoContour bool   `yaml:"doContour"`
}

// Reads a YAML configuration file
func ReadConfig(fileName string) (*Config, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %s", fileName, err.Error())
	}
	return cfg, nil
}

// Fills unset fields of the configuration with the given defaults.
// Field values already present win, so applying command line values
// first and the file second yields flags > file > defaults.
func (c *Config) Merge(other *Config) {
	if c.Cutsky.Npix == 0 {
		c.Cutsky.Npix = other.Cutsky.Npix
	}
	if c.Cutsky.Pixsize == 0 {
		c.Cutsky.Pixsize = other.Cutsky.Pixsize
	}
	if c.Cutsky.Coordframe == "" {
		c.Cutsky.Coordframe = other.Cutsky.Coordframe
	}
	if c.Cutsky.Ctype == "" {
		c.Cutsky.Ctype = other.Cutsky.Ctype
	}
	if c.Cutsky.Verbosity == "" {
		c.Cutsky.Verbosity = other.Cutsky.Verbosity
	}
	c.Cutsky.Fits = c.Cutsky.Fits || other.Cutsky.Fits
	c.Cutsky.Png = c.Cutsky.Png || other.Cutsky.Png
	c.Cutsky.Votable = c.Cutsky.Votable || other.Cutsky.Votable
	if c.Cutsky.Outdir == "" {
		c.Cutsky.Outdir = other.Cutsky.Outdir
	}
	if len(c.Maps) == 0 {
		c.Maps = other.Maps
	}
}

// Built-in defaults matching the historical command line tool
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Cutsky.Npix = 256
	cfg.Cutsky.Pixsize = 1
	cfg.Cutsky.Coordframe = "galactic"
	cfg.Cutsky.Ctype = "TAN"
	cfg.Cutsky.Verbosity = "normal"
	cfg.Cutsky.Outdir = "."
	return cfg
}
