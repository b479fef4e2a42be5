package permission

import (
	"errors"

	"github.com/metalagman/psyche/internal/substrate"
)

// Guarded wraps a substrate store with one role's capabilities. Every call
// asserts against the matrix before touching the underlying store.
type Guarded struct {
	role  Role
	store substrate.Store
}

// Guard binds a store to a role.
func Guard(role Role, store substrate.Store) *Guarded {
	return &Guarded{role: role, store: store}
}

// Role returns the bound role.
func (g *Guarded) Role() Role {
	return g.role
}

// Read asserts read access, then reads. A missing file degrades to an empty
// document because human-edited substrate files may not exist yet.
func (g *Guarded) Read(f substrate.FileType) (string, error) {
	if err := AssertCanRead(g.role, f); err != nil {
		return "", err
	}
	content, err := g.store.Read(f)
	if errors.Is(err, substrate.ErrNotFound) {
		return "", nil
	}
	return content, err
}

// Write asserts write access, then writes.
func (g *Guarded) Write(f substrate.FileType, content string) error {
	if err := AssertCanWrite(g.role, f); err != nil {
		return err
	}
	return g.store.Write(f, content)
}

// Append asserts append access, then appends.
func (g *Guarded) Append(f substrate.FileType, entry string) error {
	if err := AssertCanAppend(g.role, f); err != nil {
		return err
	}
	return g.store.Append(f, entry)
}

// ReadAll reads every file the role may read, keyed by file type.
func (g *Guarded) ReadAll() (map[substrate.FileType]string, error) {
	out := make(map[substrate.FileType]string)
	for _, f := range Readable(g.role) {
		content, err := g.Read(f)
		if err != nil {
			return nil, err
		}
		out[f] = content
	}
	return out, nil
}
