// Package permission enforces the static capability matrix governing which
// role may read, write or append each substrate file. Violations are
// programming or configuration errors, not runtime conditions, so the
// assertion API returns an identifying error meant to be surfaced, never
// routed around.
package permission

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/metalagman/psyche/internal/substrate"
)

// Role identifies one of the four cognitive roles.
type Role string

// The cognitive roles.
const (
	RolePlanner Role = "planner"
	RoleWorker  Role = "worker"
	RoleAuditor Role = "auditor"
	RoleDrives  Role = "drives"
)

// Access is one capability level.
type Access string

// The capability levels.
const (
	AccessRead   Access = "read"
	AccessWrite  Access = "write"
	AccessAppend Access = "append"
)

//go:embed matrix.yaml
var matrixYAML []byte

var matrix map[Role]map[substrate.FileType][]Access

func init() {
	if err := yaml.Unmarshal(matrixYAML, &matrix); err != nil {
		panic(fmt.Sprintf("permission: parse embedded matrix: %v", err))
	}
	for role, files := range matrix {
		for file := range files {
			if !file.Valid() {
				panic(fmt.Sprintf("permission: matrix names unknown file %q for role %q", file, role))
			}
		}
	}
}

// Can reports whether role holds the given access level on file.
func Can(role Role, file substrate.FileType, access Access) bool {
	for _, a := range matrix[role][file] {
		if a == access {
			return true
		}
	}
	return false
}

// CanRead reports whether role may read file.
func CanRead(role Role, file substrate.FileType) bool {
	return Can(role, file, AccessRead)
}

// CanWrite reports whether role may write file.
func CanWrite(role Role, file substrate.FileType) bool {
	return Can(role, file, AccessWrite)
}

// CanAppend reports whether role may append to file.
func CanAppend(role Role, file substrate.FileType) bool {
	return Can(role, file, AccessAppend)
}

// ViolationError reports an undeclared (role, file, access) combination.
type ViolationError struct {
	Role   Role
	File   substrate.FileType
	Access Access
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s does not have %s access to %s",
		strings.ToUpper(string(e.Role)),
		strings.ToUpper(string(e.Access)),
		strings.ToUpper(string(e.File)))
}

func check(role Role, file substrate.FileType, access Access) error {
	if Can(role, file, access) {
		return nil
	}
	return &ViolationError{Role: role, File: file, Access: access}
}

// AssertCanRead returns a ViolationError unless role may read file.
func AssertCanRead(role Role, file substrate.FileType) error {
	return check(role, file, AccessRead)
}

// AssertCanWrite returns a ViolationError unless role may write file.
func AssertCanWrite(role Role, file substrate.FileType) error {
	return check(role, file, AccessWrite)
}

// AssertCanAppend returns a ViolationError unless role may append to file.
func AssertCanAppend(role Role, file substrate.FileType) error {
	return check(role, file, AccessAppend)
}

// Readable returns the files role may read, in substrate.All order.
func Readable(role Role) []substrate.FileType {
	var out []substrate.FileType
	for _, f := range substrate.All() {
		if CanRead(role, f) {
			out = append(out, f)
		}
	}
	return out
}
