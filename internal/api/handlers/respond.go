package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/utils"
)

// respondError writes {success:false, error:<kind>, message} with the status
// the error maps to. Errors outside the taxonomy are logged and hidden.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	kind := string(apperr.KindOf(err))
	if kind == "" {
		log.Printf("API: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		kind = "internal_error"
	} else if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		log.Printf("API: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(apperr.HTTPStatus(err), gin.H{"success": false, "error": kind, "message": apperr.Message(err)})
}

func respondOK(c *gin.Context, body gin.H) {
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

// pathID parses a SixID route parameter.
func pathID(c *gin.Context, name, label string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		respondError(c, apperr.Validation("Invalid %s ID", label))
		return utils.SixID{}, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return n
}
