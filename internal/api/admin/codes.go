// codes.go implements handlers for minting and listing invitation codes. Codes
// are minted server-side only; the value alphabet and collision handling live in
// the repository layer.
package admin

import (
	"database/sql"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewbase/crewbase/internal/db/repositories"
)

// maxCodesPerBatch bounds a single mint request.
const maxCodesPerBatch = 100

// CodeHandlers handles invitation code management endpoints
type CodeHandlers struct {
	orgRepo  *repositories.OrganizationRepository
	codeRepo *repositories.InvitationCodeRepository
}

// NewCodeHandlers creates a new CodeHandlers instance
func NewCodeHandlers(db *sql.DB) *CodeHandlers {
	return &CodeHandlers{
		orgRepo:  repositories.NewOrganizationRepository(db),
		codeRepo: repositories.NewInvitationCodeRepository(db),
	}
}

// mintRequest is the request body for minting invitation codes.
type mintRequest struct {
	Count int `json:"count"`
}

// @Summary      Mint invitation codes
// @Description  Creates new single-use invitation codes for an organization. Count defaults to 1 and is capped at 100 per request.
// @Tags         InvitationCodes
// @Accept       json
// @Produce      json
// @Param        id       path  string       true   "Organization ID"
// @Param        request  body  mintRequest  false  "Number of codes to mint"
// @Success      201  {object}  map[string]interface{}  "codes: []models.InvitationCode"
// @Failure      400  {object}  map[string]interface{}  "Invalid count"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/organizations/{id}/codes [post]
// MintCodesHandler mints a batch of invitation codes for an organization
// POST /api/v1/admin/organizations/:id/codes
func (h *CodeHandlers) MintCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")

		// An empty body is fine and means "mint one code".
		var req mintRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
		if req.Count == 0 {
			req.Count = 1
		}
		if req.Count < 1 || req.Count > maxCodesPerBatch {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "count must be between 1 and 100",
			})
			return
		}

		org, err := h.orgRepo.GetByID(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get organization",
			})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Organization not found",
			})
			return
		}

		codes, err := h.codeRepo.CreateBatch(c.Request.Context(), orgID, req.Count)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to mint invitation codes",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"codes": codes,
		})
	}
}

// @Summary      List invitation codes
// @Description  Lists all invitation codes issued for an organization, newest first, including redeemed ones.
// @Tags         InvitationCodes
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "codes: []models.InvitationCode"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/organizations/{id}/codes [get]
// ListCodesHandler lists the invitation codes of an organization
// GET /api/v1/admin/organizations/:id/codes
func (h *CodeHandlers) ListCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")

		org, err := h.orgRepo.GetByID(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get organization",
			})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Organization not found",
			})
			return
		}

		codes, err := h.codeRepo.ListByOrganization(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list invitation codes",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"codes": codes,
		})
	}
}
