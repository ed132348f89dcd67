package api

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"bitbucket.org/mmdatafocus/retail_backend/workflow"
	"github.com/gin-gonic/gin"
)

func createProduct(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func getProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		respondInvalidInput(c, "invalid product id")
		return
	}
	product, perr := models.GetProduct(c.Request.Context(), id)
	if perr != nil {
		if errors.Is(perr, utils.ErrorRecordNotFound) {
			respondError(c, &workflow.Error{Code: workflow.ErrorCodeNotFound, Message: "product not found"})
			return
		}
		respondError(c, perr)
		return
	}
	c.JSON(http.StatusOK, product)
}
