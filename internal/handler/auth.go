package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

const adminTokenHeader = "X-Admin-Token"

// AdminAuth 校验管理接口令牌，支持 Authorization: Bearer 与 X-Admin-Token 两种写法。
// token 为空时管理接口整体关闭
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin api is disabled"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(requestToken(c)), []byte(token)) != 1 {
			klog.Warningf("管理接口鉴权失败: remote=%s, path=%s", c.ClientIP(), c.Request.URL.Path)
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if scheme, value, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	return c.GetHeader(adminTokenHeader)
}
