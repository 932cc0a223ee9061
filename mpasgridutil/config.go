/*
Copyright © 2026 the MPASGrid authors.
This file is part of MPASGrid.

MPASGrid is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

MPASGrid is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with MPASGrid.  If not, see <http://www.gnu.org/licenses/>.
*/

package mpasgridutil

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/mpasgrid"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Logger receives progress output from the commands.
var Logger *logrus.Logger

func init() {
	Logger = logrus.StandardLogger()
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
}

// gridFromConfig extracts the target grid specification from cfg.
// Values are converted with cast so that strings from environment
// variables or YAML work the same as native numbers.
func gridFromConfig(cfg *viper.Viper) (mpasgrid.GridSpec, error) {
	var g mpasgrid.GridSpec
	for _, v := range []struct {
		key string
		dst *float64
	}{
		{"conversion.grid.lat_min", &g.LatMin},
		{"conversion.grid.lat_max", &g.LatMax},
		{"conversion.grid.lon_min", &g.LonMin},
		{"conversion.grid.lon_max", &g.LonMax},
		{"conversion.grid.resolution", &g.Resolution},
	} {
		val, err := cast.ToFloat64E(cfg.Get(v.key))
		if err != nil {
			return g, fmt.Errorf("mpasgrid: configuration variable %s: %v", v.key, err)
		}
		*v.dst = val
	}
	return g, g.Check()
}

// converterFromConfig creates a Converter from the configuration.
func converterFromConfig(cfg *viper.Viper) (*mpasgrid.Converter, error) {
	grid, err := gridFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	maxDist, err := cast.ToFloat64E(cfg.Get("conversion.grid.max_dist_km"))
	if err != nil {
		return nil, fmt.Errorf("mpasgrid: configuration variable conversion.grid.max_dist_km: %v", err)
	}
	c, err := mpasgrid.NewConverter(grid, maxDist)
	if err != nil {
		return nil, err
	}
	c.NumProcessors = cfg.GetInt("nprocessors")
	c.Log = Logger
	return c, nil
}
