package restapi

import (
	"net/http/pprof"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"
)

// SetupRouter configures and returns the Gin router for the engine API.
func SetupRouter(handler *EngineHandler) *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())

	v1 := router.Group("/api/v1")
	{
		accounts := v1.Group("/accounts/:address")
		{
			accounts.GET("/borrowing-power", handler.GetBorrowingPowerHandler)
			accounts.GET("/max-borrowable/:asset", handler.GetMaxBorrowableHandler)
			accounts.POST("/validate-borrow", handler.ValidateBorrowHandler)
			accounts.POST("/refresh", handler.RefreshHandler)
			accounts.POST("/watch", handler.WatchHandler)
			accounts.DELETE("/watch", handler.UnwatchHandler)
		}

		v1.GET("/markets", handler.GetMarketsHandler)
		v1.GET("/markets/:asset/liquidity", handler.GetMarketLiquidityHandler)
		v1.GET("/chains", handler.GetChainsHandler)
	}

	router.GET("/healthz", handler.HealthzHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger UI reads the static spec served below; no swag-generated docs
	// package is involved.
	router.StaticFile("/docs/swagger.yaml", "./docs/swagger.yaml")
	swaggerURL := ginswagger.URL("/docs/swagger.yaml")
	router.GET("/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler, swaggerURL))

	pprofGroup := router.Group("/debug/pprof")
	{
		pprofGroup.GET("/", gin.WrapF(pprof.Index))
		pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
		pprofGroup.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		pprofGroup.GET("/block", gin.WrapH(pprof.Handler("block")))
		pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofGroup.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
		pprofGroup.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
	}

	return router
}
