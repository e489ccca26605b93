package model

import (
	"fmt"
	"regexp"

	"github.com/oklog/ulid/v2"
)

type IDType string

const (
	IDTypeSession IDType = "ses"
	IDTypeAttempt IDType = "att"
	IDTypeVerdict IDType = "vrd"
	IDTypeAudit   IDType = "aud"
)

var validIDTypes = map[IDType]bool{
	IDTypeSession: true,
	IDTypeAttempt: true,
	IDTypeVerdict: true,
	IDTypeAudit:   true,
}

var idRegex = regexp.MustCompile(`^(ses|att|vrd|aud)_[0-9A-HJKMNP-TV-Z]{26}$`)

// GenerateID returns a prefixed ULID. ULIDs sort by creation time, which
// keeps session files and attempt records in chronological order.
func GenerateID(idType IDType) (string, error) {
	if !validIDTypes[idType] {
		return "", fmt.Errorf("invalid ID type: %s", idType)
	}
	return fmt.Sprintf("%s_%s", idType, ulid.Make().String()), nil
}

func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}

func ParseIDType(id string) (IDType, error) {
	if !ValidateID(id) {
		return "", fmt.Errorf("invalid ID format: %s", id)
	}
	match := idRegex.FindStringSubmatch(id)
	return IDType(match[1]), nil
}
