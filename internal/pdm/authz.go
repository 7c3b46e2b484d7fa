package pdm

// Actor identifies who is performing an operation and with what privileges.
// The service trusts the caller to have authenticated the actor; role
// enforcement here is the authorization layer, nothing more.
type Actor struct {
	Name string
	Role Role
}

// The checks below encode the access model: everyone works with files they
// hold locks on, admins additionally manage file data, and supervisors
// additionally manage who holds privileged roles. Each check returns nil or
// an *UnauthorizedError.

// canEditMetadata admits the file's author and admins. Supervisors get no
// edit rights from their role alone: they manage roles, admins manage data.
func canEditMetadata(actor Actor, meta FileMetadata) error {
	if actor.Role == RoleAdmin || actor.Name == meta.Author {
		return nil
	}
	return &UnauthorizedError{
		User:   actor.Name,
		Role:   actor.Role,
		Action: "edit metadata of " + meta.Filename,
		Reason: "only the file author or an admin may edit metadata",
	}
}

func canDeleteFile(actor Actor, filename string) error {
	if actor.Role.AtLeast(RoleAdmin) {
		return nil
	}
	return &UnauthorizedError{
		User:   actor.Name,
		Role:   actor.Role,
		Action: "delete " + filename,
		Reason: "only admins may delete files",
	}
}

func canForceRelease(actor Actor, filename string) error {
	if actor.Role.AtLeast(RoleAdmin) {
		return nil
	}
	return &UnauthorizedError{
		User:   actor.Name,
		Role:   actor.Role,
		Action: "force-release the lock on " + filename,
		Reason: "only admins may release another user's lock",
	}
}

func canEditPart(actor Actor, number string) error {
	if actor.Role.AtLeast(RoleAdmin) {
		return nil
	}
	return &UnauthorizedError{
		User:   actor.Name,
		Role:   actor.Role,
		Action: "edit part " + number,
		Reason: "only admins may edit part records",
	}
}

// canAssignRole checks a role change of target from current to next.
// Admins may only move ordinary users between ordinary roles; anything
// touching a privileged tier, on either side of the change, is reserved
// for supervisors.
func canAssignRole(actor Actor, target string, current, next Role) error {
	deny := func(reason string) error {
		return &UnauthorizedError{
			User:   actor.Name,
			Role:   actor.Role,
			Action: "assign role " + next.String() + " to " + target,
			Reason: reason,
		}
	}
	if !actor.Role.AtLeast(RoleAdmin) {
		return deny("only admins and supervisors may assign roles")
	}
	if actor.Role == RoleSupervisor {
		return nil
	}
	if next.AtLeast(RoleAdmin) {
		return deny("only a supervisor may grant privileged roles")
	}
	if current.AtLeast(RoleAdmin) {
		return deny("only a supervisor may change a privileged user's role")
	}
	return nil
}
