// Package ginauth adapts authcore guards to gin.
package ginauth

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/permission"
	"github.com/gin-gonic/gin"
)

// SubjectKey is the gin context key holding the *authcore.Subject.
const SubjectKey = "authcore.subject"

// Require aborts the request unless its bearer token satisfies req. On success
// the subject is available through Subject(c) and authcore.SubjectFromContext.
func Require(engine *authcore.Engine, req permission.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := withClient(c)
		token, _ := middleware.BearerToken(c.GetHeader("Authorization"))

		subject, err := engine.RequireSubject(ctx, token, req)
		if err != nil {
			status := middleware.StatusFor(err)
			c.AbortWithStatusJSON(status, gin.H{"error": strings.ToLower(http.StatusText(status))})
			return
		}

		attach(c, ctx, subject)
		c.Next()
	}
}

// RequireRoles admits subjects holding any of roles.
func RequireRoles(engine *authcore.Engine, roles ...permission.Role) gin.HandlerFunc {
	return Require(engine, permission.Requirement{Roles: roles})
}

// Optional attaches the subject when a valid token is present and never rejects
// on a bad token.
func Optional(engine *authcore.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := withClient(c)
		if token, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
			subject, err := engine.TryGetSubject(ctx, token)
			if err != nil {
				status := middleware.StatusFor(err)
				c.AbortWithStatusJSON(status, gin.H{"error": strings.ToLower(http.StatusText(status))})
				return
			}
			if subject != nil {
				attach(c, ctx, subject)
				c.Next()
				return
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Subject returns the subject stored by Require or Optional.
func Subject(c *gin.Context) (*authcore.Subject, bool) {
	v, ok := c.Get(SubjectKey)
	if !ok {
		return nil, false
	}
	subject, ok := v.(*authcore.Subject)
	return subject, ok
}

func withClient(c *gin.Context) context.Context {
	ctx := authcore.WithClientIP(c.Request.Context(), c.ClientIP())
	return authcore.WithUserAgent(ctx, c.Request.UserAgent())
}

func attach(c *gin.Context, ctx context.Context, subject *authcore.Subject) {
	c.Set(SubjectKey, subject)
	c.Request = c.Request.WithContext(authcore.WithSubject(ctx, subject))
}
