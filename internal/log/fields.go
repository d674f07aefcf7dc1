// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldPrincipal = "principal"
	FieldDatasetID = "dataset_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOperation = "operation"

	// Geometry fields
	FieldFeatures = "features"
	FieldEPSG     = "epsg"

	// Path fields
	FieldPath = "path"
)
