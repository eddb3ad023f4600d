// Package http holds the contract between the router and the bounded
// contexts that mount routes on it.
package http

import "github.com/gin-gonic/gin"

// Module is a bounded context with HTTP routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext hands modules the groups they may mount on. V1 carries no
// authentication; modules guard their public routes themselves (the webhook
// uses API keys). Admin requires a JWT with the admin role and a tenant claim.
type RouterContext struct {
	V1    *gin.RouterGroup
	Admin *gin.RouterGroup
}
