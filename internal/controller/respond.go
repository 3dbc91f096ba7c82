package controller

import (
	"net/http"
	"strconv"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/dto"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RenderError maps a service error onto the problem payload contract.
func RenderError(ctx *gin.Context, err error) {
	if p, ok := apperr.As(err); ok {
		ctx.JSON(p.Status, dto.ProblemResponse{Code: p.Code, Title: p.Title, Detail: p.Detail})
		return
	}
	log.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("Unclassified error")
	ctx.JSON(http.StatusInternalServerError, dto.ProblemResponse{
		Code:  apperr.CodeStorageFailure,
		Title: "Internal error",
	})
}

// ParseID parses a numeric path parameter, rendering a 400 problem on
// failure.
func ParseID(ctx *gin.Context, name string) (uint, bool) {
	raw := ctx.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		ctx.JSON(http.StatusBadRequest, dto.ProblemResponse{
			Code:   "PRE_IDENTIFIER_MALFORMED",
			Title:  "Malformed identifier",
			Detail: "path parameter " + name + " must be a positive integer",
		})
		return 0, false
	}
	return uint(id), true
}

// BindJSON binds the request body, rendering a 400 problem on failure.
func BindJSON(ctx *gin.Context, target interface{}) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ProblemResponse{
			Code:   "PRE_BODY_INVALID",
			Title:  "Invalid request body",
			Detail: err.Error(),
		})
		return false
	}
	return true
}
