package admin

import (
	"net/http"

	"github.com/aldertree/questline/internal/controller"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type QuestionnaireController struct {
	questionnaireService service.QuestionnaireService
}

func NewQuestionnaireController(questionnaireService service.QuestionnaireService) *QuestionnaireController {
	return &QuestionnaireController{questionnaireService: questionnaireService}
}

// CreateQuestionnaire godoc
// @Summary Create a questionnaire
// @Tags Authoring - Questionnaires
// @Accept json
// @Produce json
// @Param questionnaire body dto.QuestionnaireCreateDTO true "Questionnaire"
// @Success 201 {object} dto.QuestionnaireResponseDTO
// @Failure 400 {object} dto.ProblemResponse
// @Failure 409 {object} dto.ProblemResponse "Duplicate name"
// @Router /questionnaires [post]
func (c *QuestionnaireController) CreateQuestionnaire(ctx *gin.Context) {
	var req dto.QuestionnaireCreateDTO
	if !controller.BindJSON(ctx, &req) {
		return
	}
	resp, err := c.questionnaireService.CreateQuestionnaire(req)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusCreated, resp)
}

// GetQuestionnaire godoc
// @Summary Get a questionnaire with its ordered screens
// @Tags Authoring - Questionnaires
// @Produce json
// @Param questionnaire_id path int true "Questionnaire ID"
// @Success 200 {object} dto.QuestionnaireResponseDTO
// @Failure 404 {object} dto.ProblemResponse
// @Router /questionnaires/{questionnaire_id} [get]
func (c *QuestionnaireController) GetQuestionnaire(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "questionnaire_id")
	if !ok {
		return
	}
	resp, err := c.questionnaireService.GetQuestionnaire(id)
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.Header("ETag", resp.Etag)
	ctx.JSON(http.StatusOK, resp)
}

// ListQuestionnaires godoc
// @Summary List questionnaires
// @Tags Authoring - Questionnaires
// @Produce json
// @Success 200 {array} dto.QuestionnaireSummaryDTO
// @Router /questionnaires [get]
func (c *QuestionnaireController) ListQuestionnaires(ctx *gin.Context) {
	resp, err := c.questionnaireService.ListQuestionnaires()
	if err != nil {
		controller.RenderError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// DeleteQuestionnaire godoc
// @Summary Delete a questionnaire and everything it owns
// @Tags Authoring - Questionnaires
// @Param questionnaire_id path int true "Questionnaire ID"
// @Param If-Match header string true "Current questionnaire ETag"
// @Success 204
// @Failure 404 {object} dto.ProblemResponse
// @Failure 412 {object} dto.ProblemResponse
// @Failure 428 {object} dto.ProblemResponse
// @Router /questionnaires/{questionnaire_id} [delete]
func (c *QuestionnaireController) DeleteQuestionnaire(ctx *gin.Context) {
	id, ok := controller.ParseID(ctx, "questionnaire_id")
	if !ok {
		return
	}
	if err := c.questionnaireService.DeleteQuestionnaire(id, ctx.GetHeader("If-Match")); err != nil {
		controller.RenderError(ctx, err)
		return
	}
	log.Info().Uint("questionnaireID", id).Msg("Questionnaire deleted")
	ctx.Status(http.StatusNoContent)
}
