package admin

import (
	"net/http"

	"github.com/aldertree/questline/internal/controller"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/service"
	"github.com/gin-gonic/gin"
)

type QuestionController struct {
	questionService service.QuestionService
}

func NewQuestionController(questionService service.QuestionService) *QuestionController {
	return &QuestionController{questionService: questionService}
}

// CreateQuestion godoc
// @Summary Create a question on a screen, optionally at a position
// @Tags Authoring - Questions
// @Accept json
// @Produce json
// @Param screen_id path int true "Screen ID"
// @Param question body dto.QuestionCreateDTO true "Question"
// @Success 201 {object} dto.QuestionResponseDTO
// @Failure 404 {object} dto.ProblemResponse
// @Failure 422 {object} dto.ProblemResponse "Position out of range"
// @Router /screens/{screen_id}/questions [post]
func (c *QuestionController) CreateQuestion(ctx *gin.Context) {
	screenID, ok := controller.ParseID(ctx, "screen_id")
	if !ok {
		return
	}
	var req dto.QuestionCreateDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.questionService.CreateQuestion(screenID, req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusCreated, resp)
}

// GetQuestion godoc
// @Summary Get a question with its options
// @Tags Authoring - Questions
// @Produce json
// @Param question_id path int true "Question ID"
// @Success 200 {object} dto.QuestionResponseDTO
// @Failure 404 {object} dto.ProblemResponse
// @Router /questions/{question_id} [get]
func (c *QuestionController) GetQuestion(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	resp, err := c.questionService.GetQuestion(id)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// PatchQuestion godoc
// @Summary Update a question's text, kind, parent link or visibility rule
// @Description A parent link that would make the question its own ancestor is rejected and leaves the question unchanged. answer_kind cannot contradict an existing placeholder binding.
// @Tags Authoring - Questions
// @Accept json
// @Produce json
// @Param question_id path int true "Question ID"
// @Param If-Match header string true "Current question ETag"
// @Param patch body dto.QuestionPatchDTO true "Fields to change"
// @Success 200 {object} dto.QuestionResponseDTO
// @Failure 409 {object} dto.ProblemResponse "Cycle or model conflict"
// @Failure 412 {object} dto.ProblemResponse
// @Failure 428 {object} dto.ProblemResponse
// @Router /questions/{question_id} [patch]
func (c *QuestionController) PatchQuestion(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	var req dto.QuestionPatchDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.questionService.PatchQuestion(id, ctx.GetHeader("If-Match"), req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// MoveQuestion godoc
// @Summary Move a question within its screen or to another screen
// @Description Cross-screen moves are allowed only within the same questionnaire.
// @Tags Authoring - Questions
// @Accept json
// @Produce json
// @Param question_id path int true "Question ID"
// @Param If-Match header string true "Current question ETag"
// @Param move body dto.QuestionMoveDTO true "Target position and optional target screen"
// @Success 200 {object} dto.QuestionResponseDTO
// @Failure 409 {object} dto.ProblemResponse "Cross-questionnaire move"
// @Failure 412 {object} dto.ProblemResponse
// @Failure 422 {object} dto.ProblemResponse "Position out of range"
// @Router /questions/{question_id}/move [post]
func (c *QuestionController) MoveQuestion(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	var req dto.QuestionMoveDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.questionService.MoveQuestion(id, ctx.GetHeader("If-Match"), req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// DeleteQuestion godoc
// @Summary Delete a question, its answers and its children's parent links
// @Tags Authoring - Questions
// @Param question_id path int true "Question ID"
// @Param If-Match header string true "Current question ETag"
// @Success 204
// @Failure 412 {object} dto.ProblemResponse
// @Failure 428 {object} dto.ProblemResponse
// @Router /questions/{question_id} [delete]
func (c *QuestionController) DeleteQuestion(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	if err := c.questionService.DeleteQuestion(id, ctx.GetHeader("If-Match")); err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// ReplaceOptions godoc
// @Summary Replace the option set of an enum_single question
// @Tags Authoring - Questions
// @Accept json
// @Produce json
// @Param question_id path int true "Question ID"
// @Param If-Match header string true "Current question ETag"
// @Param options body dto.OptionsReplaceDTO true "Full option set, in presentation order"
// @Success 200 {object} dto.QuestionResponseDTO
// @Failure 409 {object} dto.ProblemResponse "Not enum_single or duplicate value"
// @Router /questions/{question_id}/options [put]
func (c *QuestionController) ReplaceOptions(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	var req dto.OptionsReplaceDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.questionService.ReplaceOptions(id, ctx.GetHeader("If-Match"), req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// BindPlaceholder godoc
// @Summary Bind a document placeholder to a question
// @Description The first binding infers the question's answer_kind; a binding with a conflicting kind is rejected.
// @Tags Authoring - Questions
// @Accept json
// @Produce json
// @Param question_id path int true "Question ID"
// @Param binding body dto.BindingCreateDTO true "Binding"
// @Success 201 {object} dto.BindingResponseDTO
// @Failure 409 {object} dto.ProblemResponse "Kind conflict"
// @Router /questions/{question_id}/bindings [post]
func (c *QuestionController) BindPlaceholder(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	var req dto.BindingCreateDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.questionService.BindPlaceholder(id, req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

// UnbindPlaceholder godoc
// @Summary Remove a placeholder binding
// @Description Unbinding the last placeholder releases the question's inferred answer_kind.
// @Tags Authoring - Questions
// @Param question_id path int true "Question ID"
// @Param placeholder_key path string true "Placeholder key"
// @Success 204
// @Failure 404 {object} dto.ProblemResponse
// @Router /questions/{question_id}/bindings/{placeholder_key} [delete]
func (c *QuestionController) UnbindPlaceholder(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "question_id")
	if !ok {
		return
	}
	if err := c.questionService.UnbindPlaceholder(id, ctx.Param("placeholder_key")); err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
