package users

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned when a role string does not map to a known RoleType
var ErrUnknownRole = errors.New("unknown role")

// RoleType represents the role a console user signs in with
type RoleType string

const (
	RoleAdmin    RoleType = "admin"    // Back-office administrators, billing configuration
	RoleClient   RoleType = "client"   // Shippers viewing their trips and invoices
	RoleVendor   RoleType = "vendor"   // Carriers submitting trips and rates
	RoleEmployee RoleType = "employee" // Operations staff
)

var knownRoles = map[string]RoleType{
	string(RoleAdmin):    RoleAdmin,
	string(RoleClient):   RoleClient,
	string(RoleVendor):   RoleVendor,
	string(RoleEmployee): RoleEmployee,
}

// ParseRole maps a raw role string onto the closed set of roles. Matching is case-insensitive
// and ignores surrounding whitespace.
func ParseRole(raw string) (RoleType, error) {
	role, ok := knownRoles[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

// ParseRoles parses every role, failing on the first unknown one
func ParseRoles(raw ...string) ([]RoleType, error) {
	roles := make([]RoleType, 0, len(raw))
	for _, r := range raw {
		role, err := ParseRole(r)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (r RoleType) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles
func (r RoleType) Valid() bool {
	_, ok := knownRoles[string(r)]
	return ok
}

// UnmarshalText rejects unknown roles while decoding JSON responses and snapshots
func (r *RoleType) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// User is the identity record held by the session. The core only interprets Role.
type User struct {
	ID        string   `json:"id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Role      RoleType `json:"role"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Company   string   `json:"company,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
}

// Profile is a partial user update. Nil fields are left untouched.
type Profile struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Company   *string `json:"company,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Clone returns a copy of u, nil safe
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Merge returns a copy of u with the non-nil profile fields applied. ID and Role are never changed.
func (u *User) Merge(p Profile) *User {
	merged := u.Clone()
	if merged == nil {
		return nil
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&merged.Email, p.Email)
	apply(&merged.FirstName, p.FirstName)
	apply(&merged.LastName, p.LastName)
	apply(&merged.Phone, p.Phone)
	apply(&merged.Company, p.Company)
	apply(&merged.AvatarURL, p.AvatarURL)
	return merged
}

// AsProfile returns every editable field of u as a full profile update
func (u *User) AsProfile() Profile {
	if u == nil {
		return Profile{}
	}
	c := *u
	return Profile{
		Email:     &c.Email,
		FirstName: &c.FirstName,
		LastName:  &c.LastName,
		Phone:     &c.Phone,
		Company:   &c.Company,
		AvatarURL: &c.AvatarURL,
	}
}

// FullName joins the first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasRole checks if the user's role is one of roles. An empty list matches any role.
func (u *User) HasRole(roles ...RoleType) bool {
	if u == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if strings.EqualFold(string(r), string(u.Role)) {
			return true
		}
	}
	return false
}
