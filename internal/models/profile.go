package models

import (
	"errors"
	"fmt"
	"strings"
)

type Gender string

const (
	GenderMale      Gender = "male"
	GenderFemale    Gender = "female"
	GenderOther     Gender = "other"
	GenderUndefined Gender = "undefined"
)

// ParseGender maps free input onto the gender enum. Empty input is undefined.
func ParseGender(s string) (Gender, error) {
	switch g := Gender(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GenderUndefined, nil
	case GenderMale, GenderFemale, GenderOther, GenderUndefined:
		return g, nil
	default:
		return "", fmt.Errorf("invalid gender %q: must be one of male, female, other, undefined", s)
	}
}

// Document is an uploaded source document. Its content is opaque to the
// pipeline and only forwarded to the gateway.
type Document struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// Profile is the subject a recommendation is generated for. It is passed by
// value and never modified once built.
type Profile struct {
	Age         *float64  `json:"age,omitempty"`
	Gender      Gender    `json:"gender"`
	Description string    `json:"description"`
	Document    *Document `json:"document,omitempty"`
}

var (
	ErrEmptyDescription = errors.New("description must not be empty")
	ErrNegativeAge      = errors.New("age must not be negative")
)

// NewProfile validates its inputs and returns a Profile with defaults applied.
func NewProfile(age *float64, gender Gender, description string, doc *Document) (Profile, error) {
	if age != nil && *age < 0 {
		return Profile{}, ErrNegativeAge
	}
	if strings.TrimSpace(description) == "" {
		return Profile{}, ErrEmptyDescription
	}
	if gender == "" {
		gender = GenderUndefined
	}
	if _, err := ParseGender(string(gender)); err != nil {
		return Profile{}, err
	}
	var a *float64
	if age != nil {
		v := *age
		a = &v
	}
	return Profile{Age: a, Gender: gender, Description: description, Document: doc}, nil
}

// AgeText renders the age for prompts; "unknown" when absent.
func (p Profile) AgeText() string {
	if p.Age == nil {
		return "unknown"
	}
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", *p.Age), "0"), ".")
}
