package router

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/steampunk99/Hermes/internal/handler"
	"github.com/steampunk99/Hermes/internal/logic"
	"github.com/steampunk99/Hermes/internal/relay"
)

func Setup(db *gorm.DB, relayService *relay.Service) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "hermes",
		})
	})

	ledgerLogic := logic.NewLedgerLogic(db)
	gasLogic := logic.NewGasLogic(db)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 账户相关路由
		accountHandler := handler.NewAccountHandler(ledgerLogic, gasLogic)
		users := v1.Group("/users")
		{
			users.GET("/:id/balance", accountHandler.GetBalance)
			users.GET("/:id/transactions", accountHandler.GetTransactions)
		}
		v1.GET("/rates/current", accountHandler.GetRate)

		// 中继相关路由
		relayHandler := handler.NewRelayHandler(ledgerLogic, relayService)
		relayGroup := v1.Group("/relay")
		{
			relayGroup.POST("/transfers/prepare", relayHandler.PrepareTransfer)
			relayGroup.POST("/withdrawals/prepare", relayHandler.PrepareWithdrawal)
			relayGroup.POST("/execute", relayHandler.Execute)
		}

		// 出款回调路由
		payoutHandler := handler.NewPayoutHandler(ledgerLogic)
		v1.POST("/payouts/callback", payoutHandler.Callback)
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
