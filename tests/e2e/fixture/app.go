// Package fixture serves a stand-in for the scanner web application so the
// settings verification can run end to end without the real service.
package fixture

import (
	"net/http"

	"github.com/flosch/pongo2/v6"
	"github.com/gin-gonic/gin"
)

// App is the fixture application.
type App struct {
	store    *Store
	home     *pongo2.Template
	settings *pongo2.Template
	engine   *gin.Engine
}

// New builds the fixture with default settings.
func New() *App {
	a := &App{
		store:    NewStore(),
		home:     pongo2.Must(pongo2.FromString(homeTemplate)),
		settings: pongo2.Must(pongo2.FromString(settingsTemplate)),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", a.handleHome)
	r.GET("/settings.html", a.handleSettingsPage)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	api.GET("/settings", a.handleGetSettings)
	api.POST("/settings", a.handleSaveSettings)

	a.engine = r
	return a
}

// Handler returns the HTTP handler serving the fixture.
func (a *App) Handler() http.Handler {
	return a.engine
}

// Store exposes the settings backing the fixture.
func (a *App) Store() *Store {
	return a.store
}

func (a *App) render(c *gin.Context, tmpl *pongo2.Template, ctx pongo2.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := tmpl.ExecuteWriter(ctx, c.Writer); err != nil {
		c.String(http.StatusInternalServerError, "Template execution error: %v", err)
	}
}

func (a *App) handleHome(c *gin.Context) {
	a.render(c, a.home, pongo2.Context{})
}

func (a *App) handleSettingsPage(c *gin.Context) {
	a.render(c, a.settings, pongo2.Context(a.store.Snapshot()))
}

func (a *App) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.Snapshot())
}

func (a *App) handleSaveSettings(c *gin.Context) {
	var update map[string]interface{}
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if scan, ok := update["scan"].(map[string]interface{}); ok {
		start, _ := scan["startIp"].(string)
		end, _ := scan["endIp"].(string)
		if start == "" || end == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid IP range"})
			return
		}
	}

	saved := a.store.Save(update)
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": saved})
}
