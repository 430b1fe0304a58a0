package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// pathID parses a snowflake path parameter, reporting a field error named
// after the parameter when it is malformed.
func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	parsed, err := snowflake.ParseString(raw)
	if err != nil || parsed <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return parsed, nil
}
