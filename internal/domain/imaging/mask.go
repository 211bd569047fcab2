package imaging

import (
	"crypto/sha256"
	"encoding/hex"
)

const maskPrefix = "Anon-"

// MaskPatientIdentifier decides what is shown in place of a patient UID.
//
// With allowPHI the real UID is shown, falling back to the anonymized label.
// Without it the anonymized label is preferred, and a UID with no label is
// replaced by "Anon-" plus the first 8 hex characters of its SHA-256. The
// result depends only on the inputs, so the same patient always gets the
// same pseudonym.
func MaskPatientIdentifier(patientUID, anonLabel string, allowPHI bool) string {
	if allowPHI {
		if patientUID != "" {
			return patientUID
		}
		return anonLabel
	}
	if anonLabel != "" {
		return anonLabel
	}
	if patientUID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(patientUID))
	return maskPrefix + hex.EncodeToString(sum[:])[:8]
}
