package users_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw     string
		want    users.RoleType
		wantErr bool
	}{
		{raw: "admin", want: users.RoleAdmin},
		{raw: "Vendor", want: users.RoleVendor},
		{raw: " CLIENT ", want: users.RoleClient},
		{raw: "employee", want: users.RoleEmployee},
		{raw: "superuser", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := users.ParseRole(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, users.ErrUnknownRole)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestUserJSONRejectsUnknownRole(t *testing.T) {
	var u users.User
	err := json.Unmarshal([]byte(`{"id":"u1","role":"pirate"}`), &u)
	require.ErrorIs(t, err, users.ErrUnknownRole)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"u1","role":"Admin"}`), &u))
	require.Equal(t, users.RoleAdmin, u.Role)
}

func TestUserMerge(t *testing.T) {
	phone := "+44 20 7946 0000"
	company := "Acme Freight"
	u := &users.User{ID: "u1", Email: "a@example.com", Role: users.RoleVendor, FirstName: "Ann"}

	merged := u.Merge(users.Profile{Phone: &phone, Company: &company})

	require.Equal(t, "u1", merged.ID)
	require.Equal(t, users.RoleVendor, merged.Role)
	require.Equal(t, "Ann", merged.FirstName)
	require.Equal(t, phone, merged.Phone)
	require.Equal(t, company, merged.Company)
	require.Empty(t, u.Phone, "original user must not be modified")
}

func TestUserHasRole(t *testing.T) {
	u := &users.User{Role: users.RoleClient}

	require.True(t, u.HasRole())
	require.True(t, u.HasRole(users.RoleAdmin, users.RoleClient))
	require.False(t, u.HasRole(users.RoleAdmin))

	var nilUser *users.User
	require.False(t, nilUser.HasRole())
}
