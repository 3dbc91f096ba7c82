package user

import (
	"net/http"

	"github.com/aldertree/questline/internal/controller"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/service"
	"github.com/gin-gonic/gin"
)

type ResponseController struct {
	responseSetService service.ResponseSetService
	answerService      service.AnswerService
}

func NewResponseController(responseSetService service.ResponseSetService, answerService service.AnswerService) *ResponseController {
	return &ResponseController{
		responseSetService: responseSetService,
		answerService:      answerService,
	}
}

// CreateResponseSet godoc
// @Summary Open a response set for a questionnaire
// @Tags Responses
// @Accept json
// @Produce json
// @Param response_set body dto.ResponseSetCreateDTO true "Response set"
// @Success 201 {object} dto.ResponseSetResponseDTO
// @Failure 404 {object} dto.ProblemResponse
// @Router /response-sets [post]
func (c *ResponseController) CreateResponseSet(ctx *gin.Context) {
	var req dto.ResponseSetCreateDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.responseSetService.CreateResponseSet(req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusCreated, resp)
}

// GetResponseSet godoc
// @Summary Get a response set
// @Tags Responses
// @Produce json
// @Param response_set_id path int true "Response set ID"
// @Success 200 {object} dto.ResponseSetResponseDTO
// @Failure 404 {object} dto.ProblemResponse
// @Router /response-sets/{response_set_id} [get]
func (c *ResponseController) GetResponseSet(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "response_set_id")
	if !ok {
		return
	}
	resp, err := c.responseSetService.GetResponseSet(id)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// DeleteResponseSet godoc
// @Summary Delete a response set and all its answers
// @Tags Responses
// @Param response_set_id path int true "Response set ID"
// @Param If-Match header string true "Current response set ETag"
// @Success 204
// @Failure 412 {object} dto.ProblemResponse
// @Failure 428 {object} dto.ProblemResponse
// @Router /response-sets/{response_set_id} [delete]
func (c *ResponseController) DeleteResponseSet(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "response_set_id")
	if !ok {
		return
	}
	if err := c.responseSetService.DeleteResponseSet(id, ctx.GetHeader("If-Match")); err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// GetScreenView godoc
// @Summary Get a screen as this response set currently sees it
// @Description Only questions visible under the set's current answers appear; hidden questions are absent entirely.
// @Tags Responses
// @Produce json
// @Param response_set_id path int true "Response set ID"
// @Param screen_id path int true "Screen ID"
// @Success 200 {object} dto.ScreenViewDTO
// @Failure 404 {object} dto.ProblemResponse
// @Router /response-sets/{response_set_id}/screens/{screen_id} [get]
func (c *ResponseController) GetScreenView(ctx *gin.Context) {
	responseSetID, ok := controller.ParseID(ctx, "response_set_id")
	if !ok {
		return
	}
	screenID, ok := controller.ParseID(ctx, "screen_id")
	if !ok {
		return
	}
	resp, err := c.responseSetService.GetScreenView(responseSetID, screenID)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// SaveAnswer godoc
// @Summary Upsert one answer
// @Description The value is checked against the question's answer_kind. The response carries the refreshed screen view, the visibility delta and any answers suppressed by the change.
// @Tags Responses
// @Accept json
// @Produce json
// @Param response_set_id path int true "Response set ID"
// @Param question_id path int true "Question ID"
// @Param If-Match header string true "Current response set ETag"
// @Param answer body dto.AnswerUpsertDTO true "Answer value"
// @Success 200 {object} dto.AnswerSaveResponseDTO
// @Failure 409 {object} dto.ProblemResponse "Stale ETag"
// @Failure 422 {object} dto.ProblemResponse "Value rejected"
// @Failure 428 {object} dto.ProblemResponse
// @Router /response-sets/{response_set_id}/answers/{question_id} [patch]
func (c *ResponseController) SaveAnswer(ctx *gin.Context) {
	responseSetID, ok := controller.ParseID(ctx, "response_set_id")
	if !ok {
		return
	}
	questionID, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	var req dto.AnswerUpsertDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.answerService.SaveAnswer(responseSetID, questionID, ctx.GetHeader("If-Match"), req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// DeleteAnswer godoc
// @Summary Clear one answer
// @Description Clearing an absent answer is a no-op that still reports the current state.
// @Tags Responses
// @Produce json
// @Param response_set_id path int true "Response set ID"
// @Param question_id path int true "Question ID"
// @Param If-Match header string true "Current response set ETag"
// @Success 200 {object} dto.AnswerSaveResponseDTO
// @Failure 409 {object} dto.ProblemResponse "Stale ETag"
// @Failure 428 {object} dto.ProblemResponse
// @Router /response-sets/{response_set_id}/answers/{question_id} [delete]
func (c *ResponseController) DeleteAnswer(ctx *gin.Context) {
	responseSetID, ok := controller.ParseID(ctx, "response_set_id")
	if !ok {
		return
	}
	questionID, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	resp, err := c.answerService.DeleteAnswer(responseSetID, questionID, ctx.GetHeader("If-Match"))
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// BatchUpsert godoc
// @Summary Upsert several answers in one request
// @Description Each item carries its own answer ETag and is applied independently; one stale item does not block the others. Results come back in input order.
// @Tags Responses
// @Accept json
// @Produce json
// @Param response_set_id path int true "Response set ID"
// @Param batch body dto.BatchUpsertDTO true "Batch items"
// @Success 200 {object} dto.BatchUpsertResponseDTO
// @Failure 404 {object} dto.ProblemResponse
// @Router /response-sets/{response_set_id}/answers/batch [post]
func (c *ResponseController) BatchUpsert(ctx *gin.Context) {
	responseSetID, ok := controller.ParseID(ctx, "response_set_id")
	if !ok {
		return
	}
	var req dto.BatchUpsertDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.answerService.BatchUpsert(responseSetID, req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}
