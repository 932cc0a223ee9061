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

// Package mpasgridutil holds the configuration and command-line
// interface for the mpasgrid regridding tool.
package mpasgridutil

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spatialmodel/mpasgrid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to MPASGrid. The
	// conversion.grid defaults cover South America, matching the default
	// domain of the operational runs this tool was written for.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "static_file",
			usage: `
              static_file is the path to the MPAS static (or grid) file
              holding the latCell and lonCell mesh coordinates.`,
			defaultVal: "static.nc",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), convertCmd.Flags(), convertallCmd.Flags()},
		},
		{
			name: "weights_file",
			usage: `
              weights_file is the path where interpolation weights are
              saved and looked up. An empty value disables persistence.`,
			defaultVal: "interpolation_weights/weights.nc",
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), convertCmd.Flags()},
		},
		{
			name: "force",
			usage: `
              force recomputes interpolation weights and reconverts files
              even when saved results are up to date.`,
			shorthand:  "f",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), convertCmd.Flags(), convertallCmd.Flags()},
		},
		{
			name: "nprocessors",
			usage: `
              nprocessors is the number of parallel processors used when
              applying interpolation weights. Values below 1 mean one
              worker per available core.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), convertallCmd.Flags()},
		},
		{
			name: "conversion.grid.lat_min",
			usage: `
              conversion.grid.lat_min is the southern edge of the target
              grid in degrees latitude. Grid coordinates run from the
              minimum up to but not including the maximum.`,
			defaultVal: -45.0,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), convertCmd.Flags(), convertallCmd.Flags()},
		},
		{
			name: "conversion.grid.lat_max",
			usage: `
              conversion.grid.lat_max is the northern edge of the target
              grid in degrees latitude (exclusive).`,
			defaultVal: 25.0,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), convertCmd.Flags(), convertallCmd.Flags()},
		},
		{
			name: "conversion.grid.lon_min",
			usage: `
              conversion.grid.lon_min is the western edge of the target
              grid in degrees longitude.`,
			defaultVal: -90.0,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), convertCmd.Flags(), convertallCmd.Flags()},
		},
		{
			name: "conversion.grid.lon_max",
			usage: `
              conversion.grid.lon_max is the eastern edge of the target
              grid in degrees longitude (exclusive).`,
			defaultVal: -20.0,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), convertCmd.Flags(), convertallCmd.Flags()},
		},
		{
			name: "conversion.grid.resolution",
			usage: `
              conversion.grid.resolution is the angular spacing of the
              target grid in degrees.`,
			defaultVal: 0.1,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), convertCmd.Flags(), convertallCmd.Flags()},
		},
		{
			name: "conversion.grid.max_dist_km",
			usage: `
              conversion.grid.max_dist_km is the maximum distance in
              kilometers from a grid point to its nearest mesh cell for
              the point to count as inside mesh coverage. Points farther
              away hold the missing-value sentinel in the output.`,
			defaultVal: 30.0,
			flagsets:   []*pflag.FlagSet{weightsCmd.Flags(), convertCmd.Flags(), convertallCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("MPASGRID")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(weightsCmd)
	Root.AddCommand(convertCmd)
	Root.AddCommand(convertallCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("mpasgrid: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// interruptContext returns a context canceled by an interrupt signal.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "mpasgrid",
	Short: "Regrid MPAS model output onto a regular latitude-longitude grid.",
	Long: `MPASGrid interpolates fields from the unstructured MPAS mesh onto a
regular latitude-longitude grid using inverse-distance weighting over the
nearest mesh cells.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'MPASGRID_var' where 'var' is the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of MPASGrid.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("MPASGrid v%s\n", mpasgrid.Version)
	},
	DisableAutoGenTag: true,
}

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Compute and save interpolation weights.",
	Long: `weights computes the inverse-distance interpolation weights mapping
the mesh in --static_file onto the configured target grid and saves them to
--weights_file. Saved weights are reused by later conversions of any field
on the same mesh, so this is the expensive step done once per mesh-grid
pair.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := converterFromConfig(Cfg)
		if err != nil {
			return err
		}
		_, err = c.Weights(Cfg.GetString("static_file"), Cfg.GetString("weights_file"), Cfg.GetBool("force"))
		return err
	},
	DisableAutoGenTag: true,
}

var convertCmd = &cobra.Command{
	Use:   "convert INPUT OUTPUT",
	Short: "Regrid one MPAS output file.",
	Long: `convert interpolates every mesh-cell variable in the INPUT NetCDF
file onto the configured target grid and writes the result to OUTPUT.
Weights are loaded from --weights_file when they match the configured grid,
and computed from --static_file (and saved) otherwise.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := interruptContext()
		defer cancel()
		c, err := converterFromConfig(Cfg)
		if err != nil {
			return err
		}
		w, err := c.Weights(Cfg.GetString("static_file"), Cfg.GetString("weights_file"), Cfg.GetBool("force"))
		if err != nil {
			return err
		}
		return c.ConvertFile(ctx, args[0], args[1], w)
	},
	DisableAutoGenTag: true,
}

var convertallCmd = &cobra.Command{
	Use:   "convertall RUNDIR",
	Short: "Regrid every MPAS output file in a run directory.",
	Long: `convertall finds the MPAS output files (diag.*.nc, history.*.nc,
output.*.nc) in RUNDIR and regrids each onto the configured target grid,
writing the results to RUNDIR/regular_grid. Interpolation weights are kept
in RUNDIR/interpolation_weights and outputs newer than their inputs are
skipped, so rerunning after a model restart only converts the new files.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := interruptContext()
		defer cancel()
		c, err := converterFromConfig(Cfg)
		if err != nil {
			return err
		}
		return c.ConvertAll(ctx, args[0], Cfg.GetString("static_file"), Cfg.GetBool("force"))
	},
	DisableAutoGenTag: true,
}
