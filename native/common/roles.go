package common

// Role identifiers shared by the engines and the core's admin surface.
const (
	RoleAdmin    = "ROLE_ADMIN"
	RoleExecutor = "ROLE_EXECUTOR"
)
