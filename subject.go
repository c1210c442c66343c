package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
	"go.uber.org/zap"
)

// resolveSubject turns verified claims into a normalized subject. Without a
// SubjectProvider the subject carries the user id only and RoleUnknown.
func (e *Engine) resolveSubject(ctx context.Context, claims *jwt.Claims) (*permission.Subject, error) {
	if e.subjects == nil {
		return &permission.Subject{ID: claims.UserID, Role: permission.RoleUnknown}, nil
	}

	raw, err := e.subjects.LoadSubject(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	role, err := permission.ParseRole(raw.Role)
	if err != nil {
		e.logger.Debug("subject has unknown role",
			zap.String("user_id", claims.UserID),
			zap.String("role", raw.Role))
		role = permission.RoleUnknown
	}

	var perms permission.Set
	if e.registry.Count() > 0 {
		var unknown []string
		perms, unknown = e.registry.Normalize(raw.Permissions)
		if len(unknown) > 0 {
			e.logger.Debug("dropping unregistered permissions",
				zap.String("user_id", claims.UserID),
				zap.Strings("permissions", unknown))
		}
	} else {
		list := make([]permission.Permission, 0, len(raw.Permissions))
		for _, p := range raw.Permissions {
			list = append(list, permission.NormalizePermission(p))
		}
		perms = permission.NewSet(list...)
	}
	if role != permission.RoleUnknown {
		perms = perms.Union(e.roleManager.Grants(role))
	}

	return &permission.Subject{ID: claims.UserID, Role: role, Permissions: perms}, nil
}

func (e *Engine) isAdmin(ctx context.Context, userID string) (bool, error) {
	raw, err := e.subjects.LoadSubject(ctx, userID)
	if err != nil || raw == nil {
		return false, err
	}
	role, err := permission.ParseRole(raw.Role)
	if err != nil {
		return false, nil
	}
	return role == permission.RoleAdmin, nil
}
