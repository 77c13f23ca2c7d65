package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/fieldsense/audioingest/common/errs"
)

// MetadataDocument is the structured form of the JSON document a device
// submits after uploading a recording. Unknown keys are kept in the raw
// document that gets written to the blob store; only these fields feed the
// record.
type MetadataDocument struct {
	Filename       string   `json:"filename"`
	DeviceID       string   `json:"device_id"`
	StartTimestamp *int64   `json:"start_timestamp,omitempty"`
	EndTimestamp   *int64   `json:"end_timestamp,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
}

type metadataWire struct {
	Filename       string       `json:"filename"`
	DeviceID       string       `json:"device_id"`
	StartTimestamp *json.Number `json:"start_timestamp"`
	EndTimestamp   *json.Number `json:"end_timestamp"`
	Latitude       *float64     `json:"latitude"`
	Longitude      *float64     `json:"longitude"`
}

// UnmarshalJSON accepts integral or fractional epoch timestamps; fractional
// values are truncated to whole units.
func (m *MetadataDocument) UnmarshalJSON(data []byte) error {
	var w metadataWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return err
	}

	start, err := epochValue("start_timestamp", w.StartTimestamp)
	if err != nil {
		return err
	}
	end, err := epochValue("end_timestamp", w.EndTimestamp)
	if err != nil {
		return err
	}

	*m = MetadataDocument{
		Filename:       w.Filename,
		DeviceID:       w.DeviceID,
		StartTimestamp: start,
		EndTimestamp:   end,
		Latitude:       w.Latitude,
		Longitude:      w.Longitude,
	}
	return nil
}

func epochValue(field string, n *json.Number) (*int64, error) {
	if n == nil {
		return nil, nil
	}
	if v, err := n.Int64(); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%s: not a number: %q", field, n.String())
	}
	v := int64(f)
	return &v, nil
}

// Validate checks required fields. Coordinates and session bounds are stored
// as reported; devices with a bad fix still get their recording committed.
func (m *MetadataDocument) Validate() error {
	const op = "validate metadata"

	if m.Filename == "" {
		return errs.Validationf(op, "filename is required")
	}
	if err := ValidateDeviceID(m.DeviceID); err != nil {
		return err
	}
	return nil
}

// ParseMetadata decodes a submitted document, forces device_id to the
// device the request was addressed to, and validates the result. It returns
// the structured document and the merged raw document to persist.
func ParseMetadata(raw []byte, deviceID string) (*MetadataDocument, json.RawMessage, error) {
	const op = "parse metadata"

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, errs.Validationf(op, "metadata must be a JSON object")
	}
	if !json.Valid(trimmed) {
		return nil, nil, errs.Validationf(op, "metadata is not valid JSON")
	}

	override, err := json.Marshal(map[string]string{"device_id": deviceID})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal device override: %w", err)
	}
	merged, err := jsonpatch.MergePatch(trimmed, override)
	if err != nil {
		return nil, nil, errs.E(errs.KindValidation, op, "merge device_id", err)
	}

	var doc MetadataDocument
	if err := json.Unmarshal(merged, &doc); err != nil {
		return nil, nil, errs.E(errs.KindValidation, op, "decode fields", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, nil, err
	}

	return &doc, json.RawMessage(merged), nil
}
