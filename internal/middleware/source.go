package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wrenware/showcase/pkg/model"
)

// SourceKey is the gin context key carrying the audit source.
const SourceKey = "auditSource"

// SourceHeader lets trusted callers (the MCP adapter, admin tooling)
// label their mutations in the audit trail.
const SourceHeader = "X-Showcase-Source"

// AuditSource tags every request with the actor recorded in audit
// entries, defaulting to "api" for plain HTTP callers.
func AuditSource() gin.HandlerFunc {
	return func(c *gin.Context) {
		source := model.SourceAPI
		switch c.GetHeader(SourceHeader) {
		case string(model.SourceMCP):
			source = model.SourceMCP
		case string(model.SourceAdmin):
			source = model.SourceAdmin
		}
		c.Set(SourceKey, source)
		c.Next()
	}
}

// GetSource reads the source set by AuditSource, defaulting to "api".
func GetSource(c *gin.Context) model.AuditSource {
	if v, ok := c.Get(SourceKey); ok {
		if s, ok := v.(model.AuditSource); ok {
			return s
		}
	}
	return model.SourceAPI
}
