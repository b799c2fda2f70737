package shared

import (
	"fmt"
	"strings"
)

// Scope identifies one office inside its region. Calls, sessions and
// settlement records are always addressed through a Scope.
type Scope struct {
	RegionID string `json:"region_id"`
	OfficeID string `json:"office_id"`
}

func (s Scope) Validate() error {
	if strings.TrimSpace(s.RegionID) == "" {
		return ValidationError{Field: "region_id", Message: "is required"}
	}
	if strings.TrimSpace(s.OfficeID) == "" {
		return ValidationError{Field: "office_id", Message: "is required"}
	}
	return nil
}

// CallPath renders the document path of a call owned by this office
func (s Scope) CallPath(callID string) string {
	return fmt.Sprintf("region/%s/office/%s/calls/%s", s.RegionID, s.OfficeID, callID)
}

// SharedCallPath renders the document path of a shared call in the global collection
func SharedCallPath(id string) string {
	return "shared_calls/" + id
}
