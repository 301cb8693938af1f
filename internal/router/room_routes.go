package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-occupancy/internal/config"
	"github.com/iliyamo/hostel-occupancy/internal/handler"
	"github.com/iliyamo/hostel-occupancy/internal/middleware"
)

// roomsCacheNamespace groups every cached read of room data so one write
// invalidates them all.
const roomsCacheNamespace = "rooms"

// RoomDeps carries what the room routes need besides the handler.  Redis
// may be nil, which disables caching and rate limiting.
type RoomDeps struct {
	JWTSecret string
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Log       *zap.Logger
}

// RegisterRooms registers the room endpoints under /v1.  Every route needs a
// valid JWT.  Reads are open to any role and cached; writes are gated by
// role and drop the cached reads once they succeed.
func RegisterRooms(e *echo.Echo, h *handler.RoomHandler, d RoomDeps) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log),
	)

	read := g.Group("",
		middleware.RequireRole(middleware.RoleAdmin, middleware.RoleWarden, middleware.RoleStudent),
		middleware.NewRedisCache(d.Cache, d.Redis, roomsCacheNamespace),
	)
	read.GET("/rooms", h.ListRooms)
	read.GET("/rooms/:id", h.GetRoom)

	invalidate := middleware.InvalidateOnWrite(d.Cache, d.Redis, roomsCacheNamespace, d.Log)

	// ---- Wardens and admins: day-to-day changes ----
	staff := g.Group("", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleWarden), invalidate)
	staff.PUT("/rooms/:id", h.UpdateRoom)
	staff.PATCH("/rooms/:id", h.UpdateRoom)
	staff.POST("/rooms/:id/students", h.AssignStudent)
	staff.DELETE("/rooms/:id/students/:student_id", h.RemoveStudent)

	// ---- Admins only: lifecycle and repair ----
	admin := g.Group("", middleware.RequireRole(middleware.RoleAdmin), invalidate)
	admin.POST("/rooms", h.CreateRoom)
	admin.DELETE("/rooms/:id", h.DeleteRoom)
	admin.POST("/rooms/:id/reconcile", h.ReconcileRoom)
}
