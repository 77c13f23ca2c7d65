package models

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/fieldsense/audioingest/common/errs"
)

// BlobTimeLayout is the timestamp segment of generated blob names (yyyyMMdd_HHmmss).
const BlobTimeLayout = "20060102_150405"

// MetadataSuffix ends every generated metadata blob name.
const MetadataSuffix = "meta.json"

// ValidateDeviceID rejects ids that are empty or could escape the blob namespace.
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return errs.Validationf("validate device", "device_id is required")
	}
	if len(deviceID) > 100 {
		return errs.Validationf("validate device", "device_id longer than 100 characters")
	}
	if strings.ContainsAny(deviceID, `/\`) || strings.Contains(deviceID, "..") {
		return errs.Validationf("validate device", "device_id %q contains path characters", deviceID)
	}
	return nil
}

// ValidateBlobName rejects names that are empty, hidden, or not a single
// path segment.
func ValidateBlobName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") {
		return errs.Validationf("validate blob name", "invalid name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return errs.Validationf("validate blob name", "name %q contains path characters", name)
	}
	return nil
}

// BinaryName builds {device_id}_{yyyyMMdd_HHmmss}_{original_name}. Any
// directory part of the original name is dropped.
func BinaryName(deviceID, originalName string, at time.Time) (string, error) {
	base := path.Base(strings.ReplaceAll(originalName, `\`, "/"))
	if base == "." || base == ".." || base == "/" {
		return "", errs.Validationf("binary name", "invalid original name %q", originalName)
	}
	return fmt.Sprintf("%s_%s_%s", deviceID, at.Format(BlobTimeLayout), base), nil
}

// MetadataName builds {device_id}_{yyyyMMdd_HHmmss}_{job8}_meta.json. The job
// fragment keeps two submissions in the same second apart.
func MetadataName(deviceID, jobID string, at time.Time) string {
	fragment := strings.ReplaceAll(jobID, "-", "")
	if len(fragment) > 8 {
		fragment = fragment[:8]
	}
	return fmt.Sprintf("%s_%s_%s_%s", deviceID, at.Format(BlobTimeLayout), fragment, MetadataSuffix)
}
