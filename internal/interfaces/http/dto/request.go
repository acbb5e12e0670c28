// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"sitegen-ai-api/internal/domain/repository"
)

// BindPage 读取 page / page_size 查询参数，非法值回落到默认分页
func BindPage(c *gin.Context) repository.Pagination {
	return repository.NewPagination(
		queryInt(c, "page", 1),
		queryInt(c, "page_size", repository.DefaultPageSize),
	)
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// BindWebsiteID 路径中的站点 ID
func BindWebsiteID(c *gin.Context) string {
	return c.Param("id")
}
