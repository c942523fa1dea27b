package workspaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Acme Corp", "acme-corp"},
		{"  Hello,   World!  ", "hello-world"},
		{"Café Crème", "cafe-creme"},
		{"snake_case__and--dash", "snake-case-and-dash"},
		{"---", ""},
		{"Ünïcödé Tëam 2026", "unicode-team-2026"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), tc.in)
	}
}

func TestRoleRank(t *testing.T) {
	assert.True(t, RoleOwner.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.False(t, RoleMember.AtLeast(RoleAdmin))
	assert.False(t, Role("ghost").AtLeast(RoleViewer))
	assert.False(t, RoleOwner.Assignable())
	assert.True(t, RoleViewer.Assignable())
}
