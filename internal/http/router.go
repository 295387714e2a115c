// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"voltmate/internal/http/handlers"
	"voltmate/internal/http/middleware"
	"voltmate/internal/modules/recommend"
	"voltmate/internal/modules/schedule"
)

func NewRouter(
	recommendService *recommend.Service,
	scheduleService *schedule.Service,
	engineers handlers.EngineerSource,
	log zerolog.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	scheduling := handlers.NewSchedulingHandler(recommendService, scheduleService, engineers)
	r.POST("/api/scheduling/recommendations", scheduling.Recommendations)
	r.POST("/api/scheduling/day-fit", scheduling.DayFit)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
