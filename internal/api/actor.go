package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/auth"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/service"
)

// actorFrom 从认证中间件写入的上下文构造操作人
func actorFrom(c *gin.Context) service.Actor {
	actor := service.Actor{ID: c.GetString(auth.ContextUserID)}
	if v, ok := c.Get(auth.ContextOperatorType); ok {
		if t, ok := v.(model.OperatorType); ok {
			actor.Type = t
		}
	}
	if actor.Type == "" {
		actor.Type = model.OperatorCustomer
	}
	return actor
}

// queryInt 读取整型查询参数，非法或缺省时返回默认值
func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
