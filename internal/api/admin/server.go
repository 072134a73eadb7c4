// Package admin 面向运维和物业管理员的REST接口：
// 完整性报告、健康摘要和全量审计导出。
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/pollchain/internal/integrity"
	"github.com/lvdashuaibi/pollchain/internal/model"
)

type AdminServer struct {
	engine   *gin.Engine
	reporter *integrity.Reporter
}

func NewAdminServer(reporter *integrity.Reporter) *AdminServer {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &AdminServer{
		engine:   engine,
		reporter: reporter,
	}

	engine.GET("/admin/polls/:pollID/integrity", s.handleFullReport)
	engine.GET("/admin/polls/:pollID/integrity/summary", s.handleHealthSummary)
	engine.GET("/admin/integrity/export", s.handleExport)

	return s
}

// Start 启动管理服务器
func (s *AdminServer) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("管理API服务已启动，地址: http://localhost%s/admin", addr)
	return s.engine.Run(addr)
}

// Handler 返回底层HTTP处理器，供测试使用
func (s *AdminServer) Handler() http.Handler {
	return s.engine
}

func (s *AdminServer) handleFullReport(c *gin.Context) {
	pollID, ok := parsePollID(c)
	if !ok {
		return
	}

	report, err := s.reporter.FullReport(pollID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *AdminServer) handleHealthSummary(c *gin.Context) {
	pollID, ok := parsePollID(c)
	if !ok {
		return
	}

	summary, err := s.reporter.HealthSummary(pollID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// handleExport 流式输出所有链的完整性报告，逐份计算逐份写出，
// 不在内存中聚合全量报告
func (s *AdminServer) handleExport(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)

	encoder := json.NewEncoder(c.Writer)
	first := true

	c.Writer.Write([]byte("["))
	err := s.reporter.ExportAllChains(func(report *model.IntegrityReport) error {
		if !first {
			c.Writer.Write([]byte(","))
		}
		first = false
		if err := encoder.Encode(report); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		// 响应头已发出，只能记日志并截断输出
		log.Printf("审计导出失败: %v", err)
		return
	}
	c.Writer.Write([]byte("]"))
}

func parsePollID(c *gin.Context) (int64, bool) {
	pollID, err := strconv.ParseInt(c.Param("pollID"), 10, 64)
	if err != nil || pollID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的投票活动ID"})
		return 0, false
	}
	return pollID, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrPollNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
