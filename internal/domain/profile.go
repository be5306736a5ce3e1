package domain

import "strings"

// Gender is the normalized gender value used for personalization.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderOther  Gender = "other"
)

// Profile is the caller-supplied user profile that drives personalization.
type Profile struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender Gender `json:"gender"`
}

// NormalizeGender maps free-text gender input to one of the Gender values.
// Turkish spellings are accepted alongside English ones; anything
// unrecognized becomes GenderOther.
func NormalizeGender(raw string) Gender {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "female", "f", "kadın", "kadin":
		return GenderFemale
	case "male", "m", "erkek":
		return GenderMale
	default:
		return GenderOther
	}
}
