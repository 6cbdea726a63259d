package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/AgaveCraft/PlotSquared/internal/export"
	"github.com/AgaveCraft/PlotSquared/internal/plot"
	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/AgaveCraft/PlotSquared/internal/regionmgr"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, GenericResponse{Success: false, Message: msg})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	var queues []queue.Stats
	if rs.cfg.Queue != nil {
		queues = rs.cfg.Queue.Stats()
	}
	c.JSON(http.StatusOK, rs.health.snapshot(queues))
}

func (rs *RestServer) handleQueues(c *gin.Context) {
	if rs.cfg.Queue == nil {
		fail(c, http.StatusServiceUnavailable, "Очереди не настроены")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Состояние очередей", Data: rs.cfg.Queue.Stats()})
}

// loadPlot находит плот по параметрам пути и отвечает ошибкой, если не нашёл.
func (rs *RestServer) loadPlot(c *gin.Context) (*plot.Plot, bool) {
	area, ok := rs.cfg.Areas[c.Param("world")]
	if !ok {
		fail(c, http.StatusNotFound, "Мир не найден")
		return nil, false
	}
	id, err := plot.ParseID(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return nil, false
	}
	p, err := rs.cfg.Plots.Load(c.Request.Context(), area, id)
	if errors.Is(err, plot.ErrNotFound) {
		fail(c, http.StatusNotFound, "Плот не найден")
		return nil, false
	}
	if err != nil {
		rs.log.Error("❌ Загрузка плота %s/%s: %v", area.World, id, err)
		fail(c, http.StatusInternalServerError, "Ошибка загрузки плота")
		return nil, false
	}
	return p, true
}

func (rs *RestServer) handleGetPlot(c *gin.Context) {
	p, ok := rs.loadPlot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Плот найден", Data: p.Snapshot()})
}

// handleExport отдаёт архив плота потоком.
func (rs *RestServer) handleExport(c *gin.Context) {
	p, ok := rs.loadPlot(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ArchiveName(p)))

	res, err := rs.cfg.Exporter.ExportPlot(c.Request.Context(), p, c.Writer)
	if err != nil {
		rs.log.Error("❌ Выгрузка плота %s/%s: %v", p.World(), p.ID(), err)
		if !c.Writer.Written() {
			c.Header("Content-Type", "application/json")
			c.Header("Content-Disposition", "")
			fail(c, http.StatusInternalServerError, "Ошибка выгрузки плота")
			return
		}
		c.Abort()
		return
	}
	rs.log.Debug("Архив плота %s/%s: %d записей", p.World(), p.ID(), len(res.Entries))
}

// handleUpload выгружает архив плота в настроенное хранилище. С ?wait=true
// ответ приходит после записи архива.
func (rs *RestServer) handleUpload(c *gin.Context) {
	if rs.cfg.Sink == nil {
		fail(c, http.StatusNotImplemented, "Хранилище архивов не настроено")
		return
	}
	p, ok := rs.loadPlot(c)
	if !ok {
		return
	}
	name := export.ArchiveName(p)
	if c.Query("wait") != "true" {
		rs.cfg.Exporter.Upload(context.WithoutCancel(c.Request.Context()), p, rs.cfg.Sink)
		c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Выгрузка запущена", Data: gin.H{"archive": name}})
		return
	}
	f := rs.cfg.Exporter.Upload(c.Request.Context(), p, rs.cfg.Sink)
	if err := f.Wait(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, "Ошибка выгрузки: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Архив сохранён", Data: gin.H{"archive": name}})
}

// handleClear ставит очистку плота в очередь; с ?wait=true дожидается её.
func (rs *RestServer) handleClear(c *gin.Context) {
	p, ok := rs.loadPlot(c)
	if !ok {
		return
	}
	f := regionmgr.ClearPlot(c.Request.Context(), rs.cfg.Regions, p)
	if c.Query("wait") != "true" {
		c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Очистка поставлена в очередь"})
		return
	}
	if err := f.Wait(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, "Ошибка очистки: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Плот очищен"})
}

// TrustRequest - запрос на добавление доверенных игроков. С включённой
// авторизацией actor, admin и trust_everyone берутся из токена: добавлять
// «всех» может только администратор.
type TrustRequest struct {
	Actor         string `json:"actor"`
	Players       string `json:"players" binding:"required"`
	Admin         bool   `json:"admin"`
	TrustEveryone bool   `json:"trust_everyone"`
}

func trustStatus(err error) int {
	switch {
	case errors.Is(err, plot.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, plot.ErrInvalidPlayer):
		return http.StatusNotFound
	case errors.Is(err, plot.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, plot.ErrNothingToAdd),
		errors.Is(err, plot.ErrTooManyTrusted),
		errors.Is(err, plot.ErrNotConfirmed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (rs *RestServer) handleTrust(c *gin.Context) {
	var req TrustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}
	actor := plot.Actor{Admin: req.Admin, TrustEveryone: req.TrustEveryone}
	if claims, ok := claimsFrom(c); ok {
		actor.ID, actor.Admin, actor.TrustEveryone = claims.PlayerID, claims.IsAdmin, claims.IsAdmin
	} else {
		id, err := uuid.Parse(req.Actor)
		if err != nil {
			fail(c, http.StatusBadRequest, "Некорректный actor")
			return
		}
		actor.ID = id
	}
	p, ok := rs.loadPlot(c)
	if !ok {
		return
	}

	res, err := rs.cfg.Trust.Trust(c.Request.Context(), actor, p, req.Players)
	if err != nil {
		resp := GenericResponse{Success: false, Message: err.Error()}
		if res != nil {
			resp.Data = res
		}
		c.AbortWithStatusJSON(trustStatus(err), resp)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Игроки добавлены", Data: res})
}
