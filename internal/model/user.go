package model

// Roles carried in access tokens, using the identity provider's role
// names.  STAFF and ADMIN may scan tickets; GRADUANDO (a graduate)
// may manage their own invitations.
const (
	RoleAdmin    = "ADMIN"
	RoleStaff    = "STAFF"
	RoleGraduate = "GRADUANDO"
)
