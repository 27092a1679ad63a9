package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const tenantHeader = "X-Tenant-ID"

const tenantContextKey = "billing.tenant_id"

// TenantRequired resolves the tenant from the X-Tenant-ID header. The tenant
// id scopes every query; upstream infrastructure is trusted to have
// authenticated the caller.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(tenantHeader))
		if raw == "" {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID == 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		c.Set(tenantContextKey, tenantID)
		c.Next()
	}
}

func tenantFrom(c *gin.Context) snowflake.ID {
	value, ok := c.Get(tenantContextKey)
	if !ok {
		return 0
	}
	id, _ := value.(snowflake.ID)
	return id
}
