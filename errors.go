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

package mpasgrid

import "fmt"

// ConfigurationError indicates empty or malformed mesh or grid input,
// for example a mesh with zero cells or a non-positive grid resolution.
// It is fatal and not retryable.
type ConfigurationError string

func (e ConfigurationError) Error() string {
	return "mpasgrid: invalid configuration: " + string(e)
}

// ShapeMismatchError indicates that a field's mesh-cell axis length does
// not match the mesh the weights were built against. It is fatal for the
// offending field but should not abort processing of other independent
// fields in a batch.
type ShapeMismatchError struct {
	Have, Want int
}

func (e ShapeMismatchError) Error() string {
	return fmt.Sprintf("mpasgrid: field cell axis has length %d but the weights were built for a %d-cell mesh",
		e.Have, e.Want)
}

// StaleWeightsError indicates that a weight artifact was built against a
// different grid than the one being produced. A Weights value and the
// mesh-grid pair it derives from must travel together as one unit; this
// error enforces that contract where it is checkable from the artifact's
// recorded provenance.
type StaleWeightsError struct {
	Have, Want GridSpec
}

func (e StaleWeightsError) Error() string {
	return fmt.Sprintf("mpasgrid: weights were built for grid %+v but grid %+v was requested",
		e.Have, e.Want)
}
