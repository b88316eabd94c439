package vendorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowpay-backend/api/middleware"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

// ResolveVendorID extracts the vendor the caller acts for and enforces vendor access.
func ResolveVendorID(r *http.Request) (uuid.UUID, error) {
	ctx := r.Context()
	if middleware.RoleFromContext(ctx) != enums.ActorRoleVendor {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor access required")
	}

	vendorID := middleware.VendorIDFromContext(ctx)
	if vendorID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context required")
	}

	id, err := uuid.Parse(vendorID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id")
	}
	return id, nil
}
