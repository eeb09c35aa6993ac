package shared

import "errors"

// ErrCompanyRequired indicates the request carried no tenant scope.
var ErrCompanyRequired = errors.New("company id required")
