package domain

import (
	"fmt"
	"strconv"
)

// UserID is the stable numeric identity of a persisted user. Zero means the
// user has not been persisted.
type UserID int64

// ParseUserID validates and returns a UserID from its decimal form.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid user id: %q", s)
	}
	return UserID(n), nil
}

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IsNil reports whether the ID is unset.
func (id UserID) IsNil() bool {
	return id == 0
}

// PermissionCombinationID references the permission set assigned to a
// persisted user. Permission storage is an external collaborator.
type PermissionCombinationID int64

func (id PermissionCombinationID) IsNil() bool {
	return id == 0
}

func (id PermissionCombinationID) String() string {
	return strconv.FormatInt(int64(id), 10)
}
