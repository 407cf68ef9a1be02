package domain

// Role represents user role in the system
type Role string

const (
	RoleUser      Role = "USER"
	RoleAdmin     Role = "ADMIN"
	RoleTeacher   Role = "TEACHER"
	RoleStudent   Role = "STUDENT"
	RoleParent    Role = "PARENT"
	RoleDoctor    Role = "DOCTOR"
	RoleNurse     Role = "NURSE"
	RoleSecretary Role = "SECRETARY"
	RoleBilling   Role = "BILLING"
)

// Roles lists every assignable role
var Roles = []Role{
	RoleUser,
	RoleAdmin,
	RoleTeacher,
	RoleStudent,
	RoleParent,
	RoleDoctor,
	RoleNurse,
	RoleSecretary,
	RoleBilling,
}

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Organization is the tenant kind an account belongs to
type Organization string

const (
	OrganizationSchool   Organization = "school"
	OrganizationHospital Organization = "hospital"
)

// IsValid reports whether o is school or hospital
func (o Organization) IsValid() bool {
	return o == OrganizationSchool || o == OrganizationHospital
}

// ParseRole returns RoleUser for an empty value.
func ParseRole(value string) (Role, bool) {
	if value == "" {
		return RoleUser, true
	}
	r := Role(value)
	return r, r.IsValid()
}

// ParseOrganization accepts an empty value as "no organization".
func ParseOrganization(value string) (*Organization, bool) {
	if value == "" {
		return nil, true
	}
	o := Organization(value)
	if !o.IsValid() {
		return nil, false
	}
	return &o, true
}
