package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/membership-service/internal/api/dto"
	"github.com/spec-kit/membership-service/internal/auth"
	"github.com/spec-kit/membership-service/internal/service"
	apperrors "github.com/spec-kit/membership-service/pkg/util/errorutil"
)

// AdminHandler exposes administrative session management.
type AdminHandler struct {
	auth *service.AuthService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(authService *service.AuthService) *AdminHandler {
	return &AdminHandler{auth: authService}
}

// RevokeSessions handles POST /admin/users/:id/sessions/revoke.
func (h *AdminHandler) RevokeSessions(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	userID := c.Params("id")
	if userID == "" {
		return apperrors.NewValidationError("user id required", nil)
	}

	revoked, err := h.auth.RevokeSessions(c.UserContext(), principal.User.ID, userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": dto.RevokeSessionsResponse{Status: "revoked", Revoked: revoked},
	})
}
