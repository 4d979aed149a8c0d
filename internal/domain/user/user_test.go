package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCourierUsable(t *testing.T) {
	cases := []struct {
		name string
		u    User
		want bool
	}{
		{"approved active courier", User{Role: RoleCourier, IsActive: true, ApprovalStatus: ApprovalApproved}, true},
		{"pending approval", User{Role: RoleCourier, IsActive: true, ApprovalStatus: ApprovalPending}, false},
		{"inactive", User{Role: RoleCourier, IsActive: false, ApprovalStatus: ApprovalApproved}, false},
		{"wrong role", User{Role: RoleSender, IsActive: true, ApprovalStatus: ApprovalApproved}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.u.IsCourierUsable(), c.name)
	}
}
