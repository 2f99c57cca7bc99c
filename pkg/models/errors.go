package models

import "errors"

// Domain errors returned by the store layer. Handlers translate these to
// HTTP status codes; nothing below the API boundary deals in status codes.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrGroupNotFound  = errors.New("group not found")
	ErrDuplicateGroup = errors.New("group already exists")

	ErrPermissionNotFound  = errors.New("permission not found")
	ErrDuplicatePermission = errors.New("permission already exists")

	ErrHostNotFound     = errors.New("host not found")
	ErrDuplicateHost    = errors.New("host already exists")
	ErrServiceNotFound  = errors.New("service not found")
	ErrDuplicateService = errors.New("service already exists")
	ErrMapNotFound      = errors.New("map not found")
	ErrGraphNotFound    = errors.New("graph not found")
	ErrDuplicateEntity  = errors.New("entity already exists")
)
