package router

import (
	"sitegen-ai-api/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	siteHandler *handler.SiteHandler,
	creditsHandler *handler.CreditsHandler,
) {
	// 站点生成
	sites := v1.Group("/sites")
	{
		sites.POST("/generate", siteHandler.Generate) // SSE
		sites.GET("", siteHandler.ListSites)
		sites.GET("/:id", siteHandler.GetSite)
	}

	// 积分
	credits := v1.Group("/credits")
	{
		credits.GET("", creditsHandler.GetBalance)
		credits.GET("/ledger", creditsHandler.ListLedger)
		credits.POST("/grant", creditsHandler.Grant)
	}
}
