package state

import "strings"

const (
	// ProfileStringLimit caps every profile text field, in characters.
	ProfileStringLimit = 120
	// ProfilePhotoLimit caps the encoded profile photo, in characters.
	ProfilePhotoLimit = 350000
)

// ProfilePatch carries the profile fields a caller wants to change; nil
// fields are left alone.
type ProfilePatch struct {
	FirstName *string
	TeamName  *string
	City      *string
	Province  *string
	League    *string
	PhotoData *string
}

// SanitizeProfileText trims v and truncates it to ProfileStringLimit characters.
func SanitizeProfileText(v string) string {
	v = strings.TrimSpace(v)
	runes := []rune(v)
	if len(runes) > ProfileStringLimit {
		return string(runes[:ProfileStringLimit])
	}
	return v
}

// SanitizePhoto trims v and drops it entirely when it exceeds ProfilePhotoLimit.
func SanitizePhoto(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > ProfilePhotoLimit {
		return ""
	}
	return v
}

// Sanitized returns p with every field passed through the profile limits.
func (p Profile) Sanitized() Profile {
	return Profile{
		FirstName: SanitizeProfileText(p.FirstName),
		TeamName:  SanitizeProfileText(p.TeamName),
		City:      SanitizeProfileText(p.City),
		Province:  SanitizeProfileText(p.Province),
		League:    SanitizeProfileText(p.League),
		PhotoData: SanitizePhoto(p.PhotoData),
	}
}

// ApplyProfile merges the non-nil fields of patch into the profile.
func (s *State) ApplyProfile(patch ProfilePatch) {
	set := func(dst *string, src *string, sanitize func(string) string) {
		if src != nil {
			*dst = sanitize(*src)
		}
	}
	set(&s.Profile.FirstName, patch.FirstName, SanitizeProfileText)
	set(&s.Profile.TeamName, patch.TeamName, SanitizeProfileText)
	set(&s.Profile.City, patch.City, SanitizeProfileText)
	set(&s.Profile.Province, patch.Province, SanitizeProfileText)
	set(&s.Profile.League, patch.League, SanitizeProfileText)
	set(&s.Profile.PhotoData, patch.PhotoData, SanitizePhoto)
}
