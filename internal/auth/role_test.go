package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"customer", RoleCustomer, false},
		{"admin", RoleAdmin, false},
		{"Admin", "", true},
		{"superuser", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			role, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownRole)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, role)
		})
	}
}

func TestRole_CanManageCatalog(t *testing.T) {
	assert.True(t, RoleAdmin.CanManageCatalog())
	assert.False(t, RoleCustomer.CanManageCatalog())
	assert.False(t, Role("guest").CanManageCatalog())
}
