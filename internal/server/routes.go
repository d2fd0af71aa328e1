package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openvista/vistalink/internal/aggregate"
	"github.com/openvista/vistalink/internal/auth"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded := s.router.Group("/", auth.Middleware(s.guard))
	guarded.GET("/patients/search", s.handleSearch)
	guarded.GET("/patient/:icn/record", s.handleRecord)
}

func (s *Server) handleHealth(c *gin.Context) {
	sites := gin.H{}
	for _, code := range s.svc.Invoker.Sites() {
		inUse, idle, _ := s.svc.Invoker.SiteStats(code)
		sites[code] = gin.H{"in_use": inUse, "idle": idle}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).String(),
		"service": "vistalink-api",
		"version": "0.1.0",
		"sites":   sites,
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	term := strings.TrimSpace(c.Query("name"))
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name query parameter is required"})
		return
	}
	sites := s.siteParam(c)
	hits, errs := s.svc.Aggregator.Search(c.Request.Context(), term, sites)
	c.JSON(http.StatusOK, gin.H{
		"candidates": hits,
		"errors":     errs,
	})
}

func (s *Server) handleRecord(c *gin.Context) {
	icn := c.Param("icn")
	domains := splitParam(c.Query("domains"))
	for _, d := range domains {
		if !knownDomain(d) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown domain: " + d})
			return
		}
	}
	sites := s.siteParam(c)

	rec, err := s.svc.Aggregator.Aggregate(c.Request.Context(), icn, domains, sites)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// siteParam narrows the fan-out to the sites named in the query, defaulting
// to every registered site.
func (s *Server) siteParam(c *gin.Context) []string {
	requested := splitParam(c.Query("sites"))
	if len(requested) == 0 {
		return s.svc.Invoker.Sites()
	}
	return requested
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func knownDomain(name string) bool {
	for _, d := range aggregate.DomainNames() {
		if d == name {
			return true
		}
	}
	return false
}
