// Package terminology answers value set membership questions for coded
// answers. Value sets are held in memory and addressed by slug.
package terminology

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/ehr/intake/internal/platform/fhir"
)

const (
	SystemLOINC = "http://loinc.org"
	SystemUCUM  = "http://unitsofmeasure.org"
)

// ValueSet is a value set definition with its included codes.
type ValueSet struct {
	Slug    string    `json:"slug"`
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Include []Include `json:"include"`
}

// Include lists concepts taken from one code system.
type Include struct {
	System   string    `json:"system"`
	Concepts []Concept `json:"concept"`
}

type Concept struct {
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// ValidateCodeResult holds the outcome of a validate-code check.
type ValidateCodeResult struct {
	Result  bool   `json:"result"`
	Display string `json:"display,omitempty"`
	Message string `json:"message"`
}

// Registry is a concurrency-safe set of value sets.
type Registry struct {
	mu        sync.RWMutex
	valueSets map[string]*ValueSet
}

// NewRegistry returns a Registry preloaded with the built-in value sets.
func NewRegistry() *Registry {
	r := &Registry{valueSets: make(map[string]*ValueSet)}
	for _, vs := range builtinValueSets() {
		r.Register(vs)
	}
	return r
}

// Register adds or replaces a value set.
func (r *Registry) Register(vs *ValueSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueSets[vs.Slug] = vs
}

// LoadFile registers every value set in a JSON array file.
func (r *Registry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read value sets %s: %w", path, err)
	}
	var sets []*ValueSet
	if err := json.Unmarshal(data, &sets); err != nil {
		return 0, fmt.Errorf("decode value sets %s: %w", path, err)
	}
	for _, vs := range sets {
		if vs.Slug == "" {
			return 0, fmt.Errorf("value set without slug in %s", path)
		}
		r.Register(vs)
	}
	return len(sets), nil
}

// Has reports whether slug names a registered value set.
func (r *Registry) Has(slug string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.valueSets[slug]
	return ok
}

// ValidateCode checks whether code, optionally restricted to system, belongs
// to the value set named slug.
func (r *Registry) ValidateCode(slug, system, code string) *ValidateCodeResult {
	r.mu.RLock()
	vs, ok := r.valueSets[slug]
	r.mu.RUnlock()
	if !ok {
		return &ValidateCodeResult{Message: "ValueSet not found"}
	}

	want := fhir.Coding{System: system, Code: code}
	for _, inc := range vs.Include {
		for _, concept := range inc.Concepts {
			if want.Matches(fhir.Coding{System: inc.System, Code: concept.Code}) {
				return &ValidateCodeResult{Result: true, Display: concept.Display, Message: "Code is valid"}
			}
		}
	}
	return &ValidateCodeResult{Message: "Code not found in ValueSet"}
}

// ValidateCoding reports whether coding belongs to the value set named slug.
// An unknown slug is an error.
func (r *Registry) ValidateCoding(_ context.Context, slug string, coding fhir.Coding) (bool, error) {
	if !r.Has(slug) {
		return false, fmt.Errorf("value set %q not found", slug)
	}
	return r.ValidateCode(slug, coding.System, coding.Code).Result, nil
}

// List returns the registered value sets ordered by slug.
func (r *Registry) List() []*ValueSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ValueSet, 0, len(r.valueSets))
	for _, vs := range r.valueSets {
		out = append(out, vs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

func builtinValueSets() []*ValueSet {
	return []*ValueSet{
		{
			Slug:   "system-observation",
			Name:   "Observation codes",
			Status: "active",
			Include: []Include{{
				System: SystemLOINC,
				Concepts: []Concept{
					{Code: "8867-4", Display: "Heart rate"},
					{Code: "8480-6", Display: "Systolic blood pressure"},
					{Code: "8462-4", Display: "Diastolic blood pressure"},
					{Code: "85354-9", Display: "Blood pressure panel"},
					{Code: "8310-5", Display: "Body temperature"},
					{Code: "9279-1", Display: "Respiratory rate"},
					{Code: "2708-6", Display: "Oxygen saturation in Arterial blood"},
					{Code: "29463-7", Display: "Body weight"},
					{Code: "8302-2", Display: "Body height"},
					{Code: "72166-2", Display: "Tobacco smoking status"},
				},
			}},
		},
		{
			Slug:   "system-ucum-units",
			Name:   "UCUM units",
			Status: "active",
			Include: []Include{{
				System: SystemUCUM,
				Concepts: []Concept{
					{Code: "kg", Display: "kilogram"},
					{Code: "g", Display: "gram"},
					{Code: "cm", Display: "centimeter"},
					{Code: "mm[Hg]", Display: "millimeter of mercury"},
					{Code: "/min", Display: "per minute"},
					{Code: "Cel", Display: "degree Celsius"},
					{Code: "[degF]", Display: "degree Fahrenheit"},
					{Code: "%", Display: "percent"},
					{Code: "mg/dL", Display: "milligram per deciliter"},
				},
			}},
		},
		{
			Slug:   "system-administrative-gender",
			Name:   "AdministrativeGender",
			Status: "active",
			Include: []Include{{
				System: "http://hl7.org/fhir/administrative-gender",
				Concepts: []Concept{
					{Code: "male", Display: "Male"},
					{Code: "female", Display: "Female"},
					{Code: "other", Display: "Other"},
					{Code: "unknown", Display: "Unknown"},
				},
			}},
		},
		{
			Slug:   "system-observation-status",
			Name:   "ObservationStatus",
			Status: "active",
			Include: []Include{{
				System: "http://hl7.org/fhir/observation-status",
				Concepts: []Concept{
					{Code: "registered", Display: "Registered"},
					{Code: "preliminary", Display: "Preliminary"},
					{Code: "final", Display: "Final"},
					{Code: "amended", Display: "Amended"},
					{Code: "corrected", Display: "Corrected"},
					{Code: "cancelled", Display: "Cancelled"},
					{Code: "entered-in-error", Display: "Entered in Error"},
					{Code: "unknown", Display: "Unknown"},
				},
			}},
		},
	}
}
