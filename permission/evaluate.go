package permission

// Decision is the outcome of an authorization check.
type Decision uint8

const (
	// DecisionUnauthenticated means no subject was resolved.
	DecisionUnauthenticated Decision = iota
	// DecisionForbidden means the subject lacks a required role or permission.
	DecisionForbidden
	// DecisionAuthorized means every requirement was satisfied.
	DecisionAuthorized
)

func (d Decision) String() string {
	switch d {
	case DecisionAuthorized:
		return "AUTHORIZED"
	case DecisionForbidden:
		return "FORBIDDEN"
	default:
		return "UNAUTHENTICATED"
	}
}

// Requirement declares what a call site needs. An empty axis places no constraint.
type Requirement struct {
	Roles       []Role
	Permissions []Permission
}

// Subject is the resolved caller the evaluator consumes.
type Subject struct {
	ID          string
	Role        Role
	Permissions Set
}

// Result carries the decision and, when authorized, the subject.
type Result struct {
	Decision Decision
	Subject  *Subject
}

// Authorized reports whether the decision allows the call.
func (r Result) Authorized() bool {
	return r.Decision == DecisionAuthorized
}

// Evaluate checks subject against req. A nil subject is unauthenticated. Role
// membership is checked before permissions.
func Evaluate(req Requirement, subject *Subject) Result {
	if subject == nil {
		return Result{Decision: DecisionUnauthenticated}
	}

	if len(req.Roles) > 0 && !containsRole(req.Roles, subject.Role) {
		return Result{Decision: DecisionForbidden}
	}

	if len(req.Permissions) > 0 && !subject.Permissions.HasAll(req.Permissions) {
		return Result{Decision: DecisionForbidden}
	}

	return Result{Decision: DecisionAuthorized, Subject: subject}
}

func containsRole(roles []Role, role Role) bool {
	if !role.Valid() {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
