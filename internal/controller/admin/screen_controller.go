package admin

import (
	"net/http"

	"github.com/aldertree/questline/internal/controller"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/service"
	"github.com/gin-gonic/gin"
)

type ScreenController struct {
	screenService service.ScreenService
}

func NewScreenController(screenService service.ScreenService) *ScreenController {
	return &ScreenController{screenService: screenService}
}

// CreateScreen godoc
// @Summary Create a screen, optionally at a position
// @Description Appends by default; an explicit position must fall in [1..N+1], out-of-range is rejected, never clamped.
// @Tags Authoring - Screens
// @Accept json
// @Produce json
// @Param questionnaire_id path int true "Questionnaire ID"
// @Param screen body dto.ScreenCreateDTO true "Screen"
// @Success 201 {object} dto.ScreenResponseDTO
// @Failure 404 {object} dto.ProblemResponse
// @Failure 409 {object} dto.ProblemResponse "Duplicate key or title"
// @Failure 422 {object} dto.ProblemResponse "Position out of range"
// @Router /questionnaires/{questionnaire_id}/screens [post]
func (c *ScreenController) CreateScreen(ctx *gin.Context) {
	questionnaireID, ok := controller.ParseID(ctx, "questionnaire_id")
	if !ok {
		return
	}
	var req dto.ScreenCreateDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.screenService.CreateScreen(questionnaireID, req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusCreated, resp)
}

// GetScreen godoc
// @Summary Get a screen with all its questions (authoring view)
// @Tags Authoring - Screens
// @Produce json
// @Param screen_id path int true "Screen ID"
// @Success 200 {object} dto.ScreenResponseDTO
// @Failure 404 {object} dto.ProblemResponse
// @Router /screens/{screen_id} [get]
func (c *ScreenController) GetScreen(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "screen_id")
	if !ok {
		return
	}
	resp, err := c.screenService.GetScreen(id)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// PatchScreen godoc
// @Summary Rename a screen or change its key
// @Tags Authoring - Screens
// @Accept json
// @Produce json
// @Param screen_id path int true "Screen ID"
// @Param If-Match header string true "Current screen ETag"
// @Param patch body dto.ScreenPatchDTO true "Fields to change"
// @Success 200 {object} dto.ScreenResponseDTO
// @Failure 409 {object} dto.ProblemResponse
// @Failure 412 {object} dto.ProblemResponse
// @Failure 428 {object} dto.ProblemResponse
// @Router /screens/{screen_id} [patch]
func (c *ScreenController) PatchScreen(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "screen_id")
	if !ok {
		return
	}
	var req dto.ScreenPatchDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.screenService.PatchScreen(id, ctx.GetHeader("If-Match"), req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// MoveScreen godoc
// @Summary Move a screen to a new position within its questionnaire
// @Description Moving to the current position is a no-op that still rotates the ETag.
// @Tags Authoring - Screens
// @Accept json
// @Produce json
// @Param screen_id path int true "Screen ID"
// @Param If-Match header string true "Current screen ETag"
// @Param move body dto.ScreenMoveDTO true "Target position"
// @Success 200 {object} dto.ScreenResponseDTO
// @Failure 412 {object} dto.ProblemResponse
// @Failure 422 {object} dto.ProblemResponse "Position out of range"
// @Router /screens/{screen_id}/move [post]
func (c *ScreenController) MoveScreen(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "screen_id")
	if !ok {
		return
	}
	var req dto.ScreenMoveDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.screenService.MoveScreen(id, ctx.GetHeader("If-Match"), req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// DeleteScreen godoc
// @Summary Delete a screen and resequence its siblings
// @Tags Authoring - Screens
// @Param screen_id path int true "Screen ID"
// @Param If-Match header string true "Current screen ETag"
// @Success 204
// @Failure 412 {object} dto.ProblemResponse
// @Failure 428 {object} dto.ProblemResponse
// @Router /screens/{screen_id} [delete]
func (c *ScreenController) DeleteScreen(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "screen_id")
	if !ok {
		return
	}
	if err := c.screenService.DeleteScreen(id, ctx.GetHeader("If-Match")); err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
