package api

import (
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"bitbucket.org/mmdatafocus/retail_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const apiModule = "response.go"

// httpStatusByCode maps the workflow error taxonomy onto HTTP statuses.
var httpStatusByCode = map[workflow.ErrorCode]int{
	workflow.ErrorCodeInvalidInput:           http.StatusBadRequest,
	workflow.ErrorCodeInvalidStateTransition: http.StatusConflict,
	workflow.ErrorCodeInsufficientStock:      http.StatusConflict,
	workflow.ErrorCodeOverReceipt:            http.StatusBadRequest,
	workflow.ErrorCodeConflict:               http.StatusConflict,
	workflow.ErrorCodeNotFound:               http.StatusNotFound,
	workflow.ErrorCodeForbiddenLocation:      http.StatusForbidden,
}

// respondError writes a typed workflow error with its mapped status, or a
// generic 500 for anything unclassified.
func respondError(c *gin.Context, err error) {
	if code := workflow.CodeOf(err); code != "" {
		var wErr *workflow.Error
		if !errors.As(err, &wErr) {
			wErr = &workflow.Error{Code: code, Message: err.Error()}
		}
		c.JSON(httpStatusByCode[code], gin.H{"error": wErr})
		return
	}

	logger := config.GetLogger()
	config.LogError(logger, apiModule, "respondError", "Unclassified error", c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
		"code":    "INTERNAL",
		"message": "internal server error",
	}})
}

// respondBindingError converts gin binding failures into INVALID_INPUT,
// keeping per-field detail when the validator produced it.
func respondBindingError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    workflow.ErrorCodeInvalidInput,
			"message": "validation failed",
			"fields":  utils.ProcessValidationErrors(err),
		}})
		return
	}
	respondInvalidInput(c, err.Error())
}

func respondInvalidInput(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
		"code":    workflow.ErrorCodeInvalidInput,
		"message": message,
	}})
}
