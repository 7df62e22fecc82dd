// Package gophishtest provides an in-memory Gophish API server for tests.
package gophishtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"autophish/models"
)

// Server is a fake Gophish server. It records how many times each
// operation was called, keyed as "<op> <kind>", e.g. "create templates".
type Server struct {
	*httptest.Server
	APIKey string

	// RejectCampaign, when set, makes campaign creation answer with an
	// object that carries no id.
	RejectCampaign func(models.Campaign) bool

	mu        sync.Mutex
	nextID    int64
	calls     map[string]int
	templates []models.Template
	groups    []models.Group
	profiles  []models.SendingProfile
	pages     []models.Page
	campaigns []models.Campaign
}

func NewServer(apiKey string) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		APIKey: apiKey,
		calls:  make(map[string]int),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(s.authMiddleware())

	api := r.Group("/api")
	api.GET("/campaigns/summary", func(c *gin.Context) {
		s.count("summary campaigns")
		c.JSON(http.StatusOK, gin.H{"total": len(s.Campaigns()), "campaigns": []any{}})
	})

	api.GET("/templates/", s.list("templates", func() any { return s.templates }))
	api.POST("/templates/", s.createTemplate)
	api.PUT("/templates/:id", s.updateTemplate)

	api.GET("/groups/", s.list("groups", func() any { return s.groups }))
	api.GET("/groups/:id", s.get("groups", func(id int64) (any, bool) { return find(s.groups, id) }))
	api.POST("/groups/", s.createGroup)

	api.GET("/smtp/", s.list("smtp", func() any { return s.profiles }))
	api.GET("/smtp/:id", s.get("smtp", func(id int64) (any, bool) { return find(s.profiles, id) }))
	api.POST("/smtp/", s.createProfile)

	api.GET("/pages/", s.list("pages", func() any { return s.pages }))
	api.GET("/pages/:id", s.get("pages", func(id int64) (any, bool) { return find(s.pages, id) }))
	api.POST("/pages/", s.createPage)

	api.GET("/campaigns/", s.list("campaigns", func() any { return s.campaigns }))
	api.POST("/campaigns/", s.createCampaign)
	return r
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+s.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, failure("Invalid API Key"))
			return
		}
		c.Next()
	}
}

// Calls returns how many times op ran, e.g. Calls("create", "groups").
func (s *Server) Calls(op, kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op+" "+kind]
}

func (s *Server) count(key string) {
	s.mu.Lock()
	s.calls[key]++
	s.mu.Unlock()
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) SeedTemplate(t models.Template) models.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	s.templates = append(s.templates, t)
	return t
}

func (s *Server) SeedGroup(g models.Group) models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = s.id()
	s.groups = append(s.groups, g)
	return g
}

func (s *Server) SeedSendingProfile(p models.SendingProfile) models.SendingProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.profiles = append(s.profiles, p)
	return p
}

func (s *Server) SeedPage(p models.Page) models.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.pages = append(s.pages, p)
	return p
}

func (s *Server) Templates() []models.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Template(nil), s.templates...)
}

func (s *Server) Groups() []models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Group(nil), s.groups...)
}

func (s *Server) Campaigns() []models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Campaign(nil), s.campaigns...)
}

func (s *Server) list(kind string, items func() any) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.count("list " + kind)
		s.mu.Lock()
		defer s.mu.Unlock()
		c.JSON(http.StatusOK, items())
	}
}

func (s *Server) get(kind string, lookup func(int64) (any, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.count("get " + kind)
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, failure("invalid id"))
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		item, ok := lookup(id)
		if !ok {
			c.JSON(http.StatusNotFound, failure(kind+" not found"))
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func (s *Server) createTemplate(c *gin.Context) {
	s.count("create templates")
	var t models.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := findByName(s.templates, t.Name); ok {
		c.JSON(http.StatusConflict, failure("Template name already in use"))
		return
	}
	t.ID = s.id()
	t.ModifiedDate = time.Now().UTC()
	s.templates = append(s.templates, t)
	c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTemplate(c *gin.Context) {
	s.count("update templates")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, failure("invalid id"))
		return
	}
	var t models.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}
	if t.ID != id {
		c.JSON(http.StatusBadRequest, failure("Error: /:id and template_id mismatch"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.templates {
		if s.templates[i].ID == id {
			t.ModifiedDate = time.Now().UTC()
			s.templates[i] = t
			c.JSON(http.StatusOK, t)
			return
		}
	}
	c.JSON(http.StatusNotFound, failure("Template not found"))
}

func (s *Server) createGroup(c *gin.Context) {
	s.count("create groups")
	var g models.Group
	if err := c.ShouldBindJSON(&g); err != nil {
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}
	if len(g.Targets) == 0 {
		c.JSON(http.StatusBadRequest, failure("No targets specified"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = s.id()
	g.ModifiedDate = time.Now().UTC()
	s.groups = append(s.groups, g)
	c.JSON(http.StatusCreated, g)
}

func (s *Server) createProfile(c *gin.Context) {
	s.count("create smtp")
	var p models.SendingProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.ModifiedDate = time.Now().UTC()
	s.profiles = append(s.profiles, p)
	c.JSON(http.StatusCreated, p)
}

func (s *Server) createPage(c *gin.Context) {
	s.count("create pages")
	var p models.Page
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.ModifiedDate = time.Now().UTC()
	s.pages = append(s.pages, p)
	c.JSON(http.StatusCreated, p)
}

func (s *Server) createCampaign(c *gin.Context) {
	s.count("create campaigns")
	var camp models.Campaign
	if err := c.ShouldBindJSON(&camp); err != nil {
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}
	if s.RejectCampaign != nil && s.RejectCampaign(camp) {
		c.JSON(http.StatusCreated, gin.H{"name": camp.Name})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := findByName(s.templates, camp.Template.Name); !ok {
		c.JSON(http.StatusBadRequest, failure("Template not found"))
		return
	}
	if _, ok := findByName(s.pages, camp.Page.Name); !ok {
		c.JSON(http.StatusBadRequest, failure("Page not found"))
		return
	}
	if _, ok := findByName(s.profiles, camp.SMTP.Name); !ok {
		c.JSON(http.StatusBadRequest, failure("Sending profile not found"))
		return
	}
	for _, g := range camp.Groups {
		if _, ok := findByName(s.groups, g.Name); !ok {
			c.JSON(http.StatusBadRequest, failure(fmt.Sprintf("Group %s not found", g.Name)))
			return
		}
	}
	camp.ID = s.id()
	camp.Status = "In progress"
	camp.CreatedDate = time.Now().UTC()
	s.campaigns = append(s.campaigns, camp)
	c.JSON(http.StatusCreated, camp)
}

type resource interface {
	GetID() int64
	GetName() string
}

func find[T resource](items []T, id int64) (any, bool) {
	for _, item := range items {
		if item.GetID() == id {
			return item, true
		}
	}
	return nil, false
}

func findByName[T resource](items []T, name string) (T, bool) {
	for _, item := range items {
		if item.GetName() == name {
			return item, true
		}
	}
	var zero T
	return zero, false
}

func failure(msg string) gin.H {
	return gin.H{"message": msg, "success": false, "data": nil}
}
