package domain

// DriverIdentity is the authenticated driver as issued by login.
// It is immutable once issued and replaced wholesale on logout/re-login.
type DriverIdentity struct {
	ID          DriverID
	DisplayName string
}

// IsZero reports whether the identity is unset.
func (d DriverIdentity) IsZero() bool { return d.ID == "" }

// AssignedDriver is the lightweight driver reference carried by a Load.
// Either field may be empty; a reference with both empty is treated as absent.
type AssignedDriver struct {
	ID   DriverID
	Name string
}
