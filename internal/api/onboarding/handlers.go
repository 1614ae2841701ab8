// Package onboarding implements the provisioning endpoints called by the web
// client after a principal authenticates for the first time. Both endpoints are
// idempotent: repeating a call for an already-provisioned principal returns
// success without writing anything.
package onboarding

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewbase/crewbase/internal/provisioning"
)

// Reason codes returned alongside success=false so the client can render a
// specific message without parsing error strings.
const (
	ReasonPrincipalNotFound  = "PRINCIPAL_NOT_FOUND"
	ReasonInvalidCode        = "INVALID_CODE"
	ReasonValidationFailed   = "VALIDATION_FAILED"
	ReasonMetadataSyncFailed = "METADATA_SYNC_FAILED"
	ReasonInternal           = "INTERNAL"
)

// Provisioner is the subset of the provisioning service the handlers need.
type Provisioner interface {
	ProvisionEmployee(ctx context.Context, principalID string, department *string, invitationCode string) error
	ProvisionAdmin(ctx context.Context, principalID, companyName string, companyWebsite, companyLogo *string) error
}

// Handlers handles the onboarding endpoints
type Handlers struct {
	service Provisioner
}

// NewHandlers creates a new onboarding Handlers instance
func NewHandlers(service Provisioner) *Handlers {
	return &Handlers{service: service}
}

// employeeRequest is the request body for employee provisioning.
type employeeRequest struct {
	PrincipalID    string  `json:"principal_id" binding:"required"`
	Department     *string `json:"department"`
	InvitationCode string  `json:"invitation_code" binding:"required"`
}

// adminRequest is the request body for admin provisioning.
type adminRequest struct {
	PrincipalID    string  `json:"principal_id" binding:"required"`
	CompanyName    string  `json:"company_name" binding:"required"`
	CompanyWebsite *string `json:"company_website"`
	CompanyLogo    *string `json:"company_logo"`
}

// result is the uniform response body for both endpoints.
type result struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// @Summary      Provision an employee account
// @Description  Redeems a single-use invitation code and provisions the authenticated principal as an employee of the code's organization. Idempotent: repeated calls for a provisioned principal succeed without consuming another code.
// @Tags         Onboarding
// @Accept       json
// @Produce      json
// @Param        request  body  employeeRequest  true  "Principal, optional department, and invitation code"
// @Success      200  {object}  result
// @Failure      400  {object}  result  "VALIDATION_FAILED"
// @Failure      404  {object}  result  "PRINCIPAL_NOT_FOUND"
// @Failure      422  {object}  result  "INVALID_CODE"
// @Failure      502  {object}  result  "METADATA_SYNC_FAILED — account committed, directory merge pending"
// @Router       /api/v1/onboarding/employee [post]
// EmployeeHandler provisions the principal as an invited employee.
// POST /api/v1/onboarding/employee
func (h *Handlers) EmployeeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req employeeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, result{Success: false, Reason: ReasonValidationFailed})
			return
		}

		err := h.service.ProvisionEmployee(c.Request.Context(), req.PrincipalID, req.Department, req.InvitationCode)
		writeResult(c, err)
	}
}

// @Summary      Provision an admin account
// @Description  Creates a new organization and provisions the authenticated principal as its admin. Idempotent: repeated calls for a provisioned principal succeed without creating another organization.
// @Tags         Onboarding
// @Accept       json
// @Produce      json
// @Param        request  body  adminRequest  true  "Principal and company details"
// @Success      200  {object}  result
// @Failure      400  {object}  result  "VALIDATION_FAILED"
// @Failure      404  {object}  result  "PRINCIPAL_NOT_FOUND"
// @Failure      502  {object}  result  "METADATA_SYNC_FAILED — account committed, directory merge pending"
// @Router       /api/v1/onboarding/admin [post]
// AdminHandler provisions the principal as the admin of a new organization.
// POST /api/v1/onboarding/admin
func (h *Handlers) AdminHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adminRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, result{Success: false, Reason: ReasonValidationFailed})
			return
		}

		err := h.service.ProvisionAdmin(c.Request.Context(), req.PrincipalID, req.CompanyName, req.CompanyWebsite, req.CompanyLogo)
		writeResult(c, err)
	}
}

// writeResult maps the workflow error taxonomy onto HTTP statuses and reason
// codes. Anything outside the taxonomy is a transient store failure.
func writeResult(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result{Success: true})
	case errors.Is(err, provisioning.ErrValidation):
		c.JSON(http.StatusBadRequest, result{Success: false, Reason: ReasonValidationFailed})
	case errors.Is(err, provisioning.ErrPrincipalNotFound):
		c.JSON(http.StatusNotFound, result{Success: false, Reason: ReasonPrincipalNotFound})
	case errors.Is(err, provisioning.ErrInvalidCode):
		c.JSON(http.StatusUnprocessableEntity, result{Success: false, Reason: ReasonInvalidCode})
	case errors.Is(err, provisioning.ErrMetadataSync):
		// The relational write committed; the client may retry the whole call.
		c.JSON(http.StatusBadGateway, result{Success: false, Reason: ReasonMetadataSyncFailed})
	default:
		c.JSON(http.StatusInternalServerError, result{Success: false, Reason: ReasonInternal})
	}
}
