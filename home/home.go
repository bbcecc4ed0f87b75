package home

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"messageboard/cache"
	"messageboard/common"
	"messageboard/models"
	"messageboard/store"
)

// DashboardSize is how many posts each dashboard column shows.
const DashboardSize = 5

const dashboardKey = "dashboard"

type HomeModule struct {
	store store.Store
	cache cache.Cache
}

func NewHomeModule(s store.Store, c cache.Cache) *HomeModule {
	if c == nil {
		c = cache.NopCache{}
	}
	return &HomeModule{store: s, cache: c}
}

func (h *HomeModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.index)
	router.GET("/about", h.about)
}

type Dashboard struct {
	Top    []models.Post `json:"top"`
	Recent []models.Post `json:"recent"`
}

// LoadDashboard reads the most viewed and the most recent posts
// concurrently.
func (h *HomeModule) LoadDashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if h.cache.Get(ctx, dashboardKey, &d) {
		return &d, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		posts, err := h.store.ListPosts(gctx, store.PostFilter{}, store.ListOptions{
			Limit: DashboardSize,
			Sort:  store.SortViews,
		})
		d.Top = posts
		return err
	})
	g.Go(func() error {
		posts, err := h.store.ListPosts(gctx, store.PostFilter{}, store.ListOptions{
			Limit: DashboardSize,
			Sort:  store.SortRecent,
		})
		d.Recent = posts
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h.cache.Set(ctx, dashboardKey, d)
	return &d, nil
}

func (h *HomeModule) index(c *gin.Context) {
	d, err := h.LoadDashboard(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.HTML(http.StatusOK, "home.html", common.Page(c, gin.H{
		"title":       "Home",
		"topPosts":    d.Top,
		"recentPosts": d.Recent,
	}))
}

func (h *HomeModule) about(c *gin.Context) {
	c.HTML(http.StatusOK, "about.html", common.Page(c, gin.H{
		"title": "About",
	}))
}
