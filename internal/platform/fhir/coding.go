// Package fhir holds the small set of FHIR datatypes shared by the domain.
package fhir

// Coding is a code drawn from a code system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Matches reports whether c names the same concept as other. Display and
// version are ignored; an empty system on either side matches any system.
func (c Coding) Matches(other Coding) bool {
	if c.Code != other.Code {
		return false
	}
	return c.System == "" || other.System == "" || c.System == other.System
}
