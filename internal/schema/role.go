package schema

// Role is a named actor class. Existing marks roles defined outside this
// schema; Bypass roles skip policy evaluation entirely.
type Role struct {
	Name       string
	CreateRole bool
	Bypass     bool
	Existing   bool
}

// Public is the wildcard role every actor carries implicitly.
var Public = Role{Name: "public", Existing: true}

func NewRole(name string) Role { return Role{Name: name} }

func ExistingRole(name string) Role { return Role{Name: name, Existing: true} }

func BypassRole(name string) Role { return Role{Name: name, Bypass: true} }
