package shared

import "context"

type companyContextKey struct{}

// ContextWithCompany stores the tenant company id in context.
func ContextWithCompany(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, companyContextKey{}, companyID)
}

// CompanyFromContext extracts the tenant company id from context.
// The boolean is false when no company has been resolved for the request.
func CompanyFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(companyContextKey{}).(int64)
	return id, ok && id > 0
}
