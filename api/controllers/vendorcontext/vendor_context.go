package vendorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// ResolveVendorID returns the vendor a vendor-staff caller acts for.
func ResolveVendorID(r *http.Request) (uuid.UUID, error) {
	ctx := r.Context()
	if middleware.RoleFromContext(ctx) != enums.ActorRoleVendor {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor access required")
	}
	vendorID := middleware.VendorIDFromContext(ctx)
	if vendorID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context required")
	}
	return vendorID, nil
}
