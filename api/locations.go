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

func locationIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		respondInvalidInput(c, "invalid location id")
		return 0, false
	}
	return id, true
}

func createLocation(c *gin.Context) {
	var input models.NewLocation
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindingError(c, err)
		return
	}
	location, err := models.CreateLocation(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, location)
}

func getLocation(c *gin.Context) {
	id, ok := locationIdParam(c)
	if !ok {
		return
	}
	location, err := models.GetLocation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			respondError(c, &workflow.Error{Code: workflow.ErrorCodeNotFound, Message: "location not found"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

func listLocations(c *gin.Context) {
	locations, err := models.ListLocations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, locations)
}

// listLocationStocks returns the current available quantities at a location,
// one row per product/variant that ever moved there.
func listLocationStocks(c *gin.Context) {
	id, ok := locationIdParam(c)
	if !ok {
		return
	}
	stocks, err := models.GetAvailableStocks(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stocks)
}
