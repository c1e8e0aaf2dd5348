package auth

import (
	"context"

	"github.com/mind-engage/quizdesk/internal/rbac"
)

type ctxKey string

const ctxKeySub ctxKey = "sub"

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySub).(string)
	return s
}

// Principal is the authenticated caller.
type Principal struct {
	ID   string
	Role string
}

func PrincipalFromContext(ctx context.Context) Principal {
	return Principal{ID: SubjectFromContext(ctx), Role: rbac.RoleFromContext(ctx)}
}

// WithPrincipal sets subject and role together; used by tests and the CLI.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return rbac.WithRole(WithSubject(ctx, p.ID), p.Role)
}
