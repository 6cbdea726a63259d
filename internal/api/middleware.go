package api

import (
	"net/http"
	"strings"

	"github.com/AgaveCraft/PlotSquared/internal/auth"
	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// jwtMiddleware требует заголовок "Authorization: Bearer <token>" и кладёт
// проверенные claims в контекст запроса.
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			fail(c, http.StatusUnauthorized, "Отсутствует токен авторизации")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			fail(c, http.StatusUnauthorized, "Неверный формат токена")
			return
		}
		claims, err := rs.cfg.Auth.Validate(token)
		if err != nil {
			rs.log.Debug("🔐 Отклонён токен для %s: %v", c.FullPath(), err)
			fail(c, http.StatusUnauthorized, "Недействительный токен")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// adminMiddleware закрывает очистку и экспорт плотов от обычных игроков.
// Без настроенной авторизации пропускает всех.
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.cfg.Auth != nil {
			if claims, ok := claimsFrom(c); !ok || !claims.IsAdmin {
				fail(c, http.StatusForbidden, "Недостаточно прав доступа")
				return
			}
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
