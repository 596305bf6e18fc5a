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

package rest

import (
	"bytes"
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/cutsky/internal/cut"
	"github.com/mlnoga/cutsky/internal/fits"
	"github.com/mlnoga/cutsky/internal/wcs"
)

// Serves sky cutouts over REST from a prepared batch cutter
func Serve(c *cut.CutSky) {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/cut", postCut(c))
			v1.POST("/profile", postProfile(c))
			v1.POST("/stack", postStack(c))
		}
	}
	r.Run() // listen and serve on 0.0.0.0:8080
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

type postCutArgs struct {
	Lon        float64  `json:"lon"`
	Lat        float64  `json:"lat"`
	Coordframe string   `json:"coordframe"`
	Maps       []string `json:"maps"` // legends, empty for all
	Phot       bool     `json:"phot"`
}

type cutResult struct {
	Legend string  `json:"legend"`
	PNG    string  `json:"png"` // base64
	Phot   float64 `json:"phot,omitempty"`
}

func postCut(cutter *cut.CutSky) gin.HandlerFunc {
	return func(c *gin.Context) {
		var args postCutArgs
		if err := c.ShouldBind(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		frame, err := wcs.ParseFrame(args.Coordframe)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var patches []cut.Patch
		if args.Phot {
			patches, err = cutter.CutPhot(args.Lon, args.Lat, frame, args.Maps)
			if err == nil {
				patches, err = cutter.CutPNG(args.Lon, args.Lat, frame, args.Maps)
			}
		} else {
			patches, err = cutter.CutPNG(args.Lon, args.Lat, frame, args.Maps)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		results := make([]cutResult, len(patches))
		for i, p := range patches {
			results[i] = cutResult{
				Legend: p.Legend,
				PNG:    base64.StdEncoding.EncodeToString(p.PNG),
				Phot:   p.Phot,
			}
		}
		c.JSON(http.StatusOK, results)
	}
}

type postProfileArgs struct {
	Lon        float64 `json:"lon"`
	Lat        float64 `json:"lat"`
	Coordframe string  `json:"coordframe"`
	Radius     float64 `json:"radius"` // [arcmin]
	Npix       int     `json:"npix"`
	Std        bool    `json:"std"`
}

type profileResult struct {
	Legend  string    `json:"legend"`
	Radius  []float64 `json:"radius"` // [deg]
	Profile []float64 `json:"profile"`
	Std     []float64 `json:"std,omitempty"`
}

func postProfile(cutter *cut.CutSky) gin.HandlerFunc {
	return func(c *gin.Context) {
		var args postProfileArgs
		if err := c.ShouldBind(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		frame, err := wcs.ParseFrame(args.Coordframe)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		npix := args.Npix
		if npix == 0 {
			npix = cutter.Npix
		}
		pg := wcs.NewProfileGrid(args.Radius/60/float64(npix), npix)

		var results []profileResult
		for _, group := range cutter.Groups {
			for _, m := range group.Maps {
				if err := m.Materialize(); err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				profile, std, err := cut.HPToProfile(m.Map, args.Lon, args.Lat, frame, pg, args.Std)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				radius := make([]float64, npix)
				for i := range radius {
					radius[i] = pg.PixToWorld(float64(i))
				}
				results = append(results, profileResult{Legend: m.Legend, Radius: radius, Profile: profile, Std: std})
			}
		}
		c.JSON(http.StatusOK, results)
	}
}

type postStackArgs struct {
	Lons       []float64 `json:"lons"`
	Lats       []float64 `json:"lats"`
	Coordframe string    `json:"coordframe"`
	Order      int       `json:"order"`
}

type stackResult struct {
	Legend string `json:"legend"`
	PNG    string `json:"png"` // base64
}

func postStack(cutter *cut.CutSky) gin.HandlerFunc {
	return func(c *gin.Context) {
		var args postStackArgs
		if err := c.ShouldBind(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		frame, err := wcs.ParseFrame(args.Coordframe)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var results []stackResult
		for _, group := range cutter.Groups {
			for _, m := range group.Maps {
				if err := m.Materialize(); err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				imgs, err := cut.HPStack(m.Map, args.Lons, args.Lats, frame,
					[]float64{cutter.Pixsize / 60}, cutter.Npix, cutter.Proj, args.Order, false)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				results = append(results, stackResult{Legend: m.Legend, PNG: encodePNG(imgs[0])})
			}
		}
		c.JSON(http.StatusOK, results)
	}
}

func encodePNG(img *fits.Image) string {
	buf := &bytes.Buffer{}
	if err := img.WritePNG(buf, 0, 0); err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
