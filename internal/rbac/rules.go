package rbac

// RolePermissions is the default policy. Per-resource checks (course manager,
// bank share access) happen in the handlers on top of this.
var RolePermissions = map[string][]string{
	"student": {
		"course:view",
		"quiz:view",
		"result:create",
		"result:save",
		"result:submit",
		"result:view-own",
		"report:view",
		"user:change_password",
	},
	"manager": {
		"course:*",
		"bank:*",
		"quiz:*",
		"result:view-all",
		"result:grade",
		"evaluation:*",
		"report:*",
		"users:list",
		"user:change_password",
	},
	"admin": {
		"*",
	},
}
