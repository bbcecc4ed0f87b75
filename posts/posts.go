package posts

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messageboard/auth"
	"messageboard/cache"
	"messageboard/common"
	"messageboard/models"
	"messageboard/store"
	"messageboard/validation"
)

const postKey = "post"

type PostsModule struct {
	store store.Store
	cache cache.Cache
}

func NewPostsModule(s store.Store, c cache.Cache) *PostsModule {
	if c == nil {
		c = cache.NopCache{}
	}
	return &PostsModule{store: s, cache: c}
}

func (p *PostsModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/posts", cache.PageMiddleware(p.cache), p.index)
	router.GET("/posts/new", auth.RequireLogin, p.newPost)
	router.POST("/posts", auth.RequireLogin, p.create)
	router.GET("/posts/:id", p.show)

	owned := router.Group("/posts/:id", auth.RequireLogin, p.loadPost, p.requireOwner)
	{
		owned.GET("/edit", p.edit)
		owned.PUT("", p.update)
		owned.DELETE("", p.destroy)
	}

	router.POST("/posts/:id/comments", auth.RequireLogin, p.createComment)
	router.DELETE("/posts/:id/comments/:commentId", auth.RequireLogin, p.loadPost, p.deleteComment)
}

func (p *PostsModule) loadPost(c *gin.Context) {
	post, err := p.store.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.Set(postKey, post)
	c.Next()
}

// requireOwner lets only the author through. Other users get a 403 and
// stay logged in.
func (p *PostsModule) requireOwner(c *gin.Context) {
	post := c.MustGet(postKey).(*models.Post)
	if !auth.IsOwner(post.AuthorID, common.Current(c).User) {
		common.Forbidden(c)
		return
	}
	c.Next()
}

// listParams carries paging (and search) across redirects.
func listParams(q ListQuery, page int) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.SearchType != "" {
		v.Set("searchType", q.SearchType)
	}
	if q.SearchText != "" {
		v.Set("searchText", q.SearchText)
	}
	return v.Encode()
}

func (p *PostsModule) index(c *gin.Context) {
	ctx := c.Request.Context()
	q := ParseListQuery(c.Request.URL.Query())

	filter, err := BuildFilter(ctx, q, p.store)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	count, err := p.store.CountPosts(ctx, filter)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	posts, err := p.store.ListPosts(ctx, filter, store.ListOptions{
		Skip:  q.Skip(),
		Limit: q.Limit,
		Sort:  store.SortRecent,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.HTML(http.StatusOK, "posts_index.html", common.Page(c, gin.H{
		"title":       "Board",
		"posts":       posts,
		"currentPage": q.Page,
		"maxPage":     MaxPage(count, q.Limit),
		"limit":       q.Limit,
		"searchType":  q.SearchType,
		"searchText":  q.SearchText,
	}))
}

func (p *PostsModule) newPost(c *gin.Context) {
	rc := common.Current(c)
	q := ParseListQuery(c.Request.URL.Query())

	var form validation.PostCandidate
	errs := map[string]string{}
	rc.Flash(postKey, &form)
	rc.Flash("errors", &errs)

	p.renderNew(c, http.StatusOK, form, errs, q)
}

func (p *PostsModule) renderNew(c *gin.Context, status int, form validation.PostCandidate, errs map[string]string, q ListQuery) {
	c.HTML(status, "posts_new.html", common.Page(c, gin.H{
		"title":  "New Post",
		"post":   form,
		"errors": errs,
		"page":   q.Page,
		"limit":  q.Limit,
	}))
}

func (p *PostsModule) create(c *gin.Context) {
	ctx := c.Request.Context()
	rc := common.Current(c)
	q := ParseListQuery(c.Request.URL.Query())

	var form validation.PostCandidate
	if err := c.ShouldBind(&form); err != nil {
		common.RespondError(c, err)
		return
	}
	if errs := validation.ValidatePost(form); len(errs) > 0 {
		rc.AddFlash(postKey, form)
		rc.AddFlash("errors", errs.Map())
		target := "/posts/new"
		if raw := c.Request.URL.RawQuery; raw != "" {
			target += "?" + raw
		}
		common.RedirectBack(c, target, func(status int) {
			p.renderNew(c, status, form, errs.Map(), q)
		})
		return
	}

	number, err := p.store.NextSequence(ctx, store.PostSequence)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	post := models.Post{
		ID:        uuid.NewString(),
		Number:    number,
		Title:     form.Title,
		Body:      form.Body,
		AuthorID:  rc.User.ID,
		CreatedAt: time.Now(),
	}
	if err := p.store.CreatePost(ctx, &post); err != nil {
		common.RespondError(c, err)
		return
	}
	p.cache.Invalidate(ctx)

	common.Redirect(c, "/posts?"+listParams(q, 1))
}

func (p *PostsModule) show(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := p.store.IncrementViews(ctx, id); err != nil {
		common.RespondError(c, err)
		return
	}
	post, err := p.store.GetPost(ctx, id)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	rc := common.Current(c)
	var comment validation.CommentCandidate
	errs := map[string]string{}
	rc.Flash("comment", &comment)
	rc.Flash("errors", &errs)

	p.renderShow(c, http.StatusOK, post, comment, errs)
}

func (p *PostsModule) renderShow(c *gin.Context, status int, post *models.Post, comment validation.CommentCandidate, errs map[string]string) {
	q := ParseListQuery(c.Request.URL.Query())
	c.HTML(status, "posts_show.html", common.Page(c, gin.H{
		"title":   post.Title,
		"post":    post,
		"isOwner": auth.IsOwner(post.AuthorID, common.Current(c).User),
		"comment": comment,
		"errors":  errs,
		"page":    q.Page,
		"limit":   q.Limit,
	}))
}

func (p *PostsModule) edit(c *gin.Context) {
	rc := common.Current(c)
	post := c.MustGet(postKey).(*models.Post)

	form := validation.PostCandidate{Title: post.Title, Body: post.Body}
	errs := map[string]string{}
	rc.Flash(postKey, &form)
	rc.Flash("errors", &errs)

	p.renderEdit(c, http.StatusOK, post.ID, form, errs)
}

func (p *PostsModule) renderEdit(c *gin.Context, status int, id string, form validation.PostCandidate, errs map[string]string) {
	c.HTML(status, "posts_edit.html", common.Page(c, gin.H{
		"title":  "Edit Post",
		"id":     id,
		"post":   form,
		"errors": errs,
	}))
}

func (p *PostsModule) update(c *gin.Context) {
	ctx := c.Request.Context()
	rc := common.Current(c)
	post := c.MustGet(postKey).(*models.Post)

	var form validation.PostCandidate
	if err := c.ShouldBind(&form); err != nil {
		common.RespondError(c, err)
		return
	}
	if errs := validation.ValidatePost(form); len(errs) > 0 {
		rc.AddFlash(postKey, form)
		rc.AddFlash("errors", errs.Map())
		common.RedirectBack(c, "/posts/"+post.ID+"/edit", func(status int) {
			p.renderEdit(c, status, post.ID, form, errs.Map())
		})
		return
	}

	now := time.Now()
	post.Title = form.Title
	post.Body = form.Body
	post.UpdatedAt = &now
	if err := p.store.UpdatePost(ctx, post); err != nil {
		common.RespondError(c, err)
		return
	}
	p.cache.Invalidate(ctx)

	common.Redirect(c, "/posts/"+post.ID)
}

func (p *PostsModule) destroy(c *gin.Context) {
	ctx := c.Request.Context()
	post := c.MustGet(postKey).(*models.Post)
	q := ParseListQuery(c.Request.URL.Query())

	if err := p.store.DeletePost(ctx, post.ID); err != nil {
		common.RespondError(c, err)
		return
	}
	p.cache.Invalidate(ctx)

	common.Redirect(c, "/posts?"+listParams(q, q.Page))
}

func (p *PostsModule) createComment(c *gin.Context) {
	ctx := c.Request.Context()
	rc := common.Current(c)
	postID := c.Param("id")

	var form validation.CommentCandidate
	if err := c.ShouldBind(&form); err != nil {
		common.RespondError(c, err)
		return
	}
	if errs := validation.ValidateComment(form); len(errs) > 0 {
		rc.AddFlash("comment", form)
		rc.AddFlash("errors", errs.Map())
		common.RedirectBack(c, "/posts/"+postID, func(status int) {
			post, err := p.store.GetPost(ctx, postID)
			if err != nil {
				common.RespondError(c, err)
				return
			}
			p.renderShow(c, status, post, form, errs.Map())
		})
		return
	}

	comment := models.Comment{
		ID:        uuid.NewString(),
		Body:      form.Body,
		AuthorID:  rc.User.ID,
		CreatedAt: time.Now(),
	}
	if err := p.store.AddComment(ctx, postID, &comment); err != nil {
		common.RespondError(c, err)
		return
	}

	common.Redirect(c, "/posts/"+postID)
}

func (p *PostsModule) deleteComment(c *gin.Context) {
	post := c.MustGet(postKey).(*models.Post)
	comment := post.FindComment(c.Param("commentId"))
	if comment == nil {
		common.NotFound(c)
		return
	}
	if !auth.IsOwner(comment.AuthorID, common.Current(c).User) {
		common.Forbidden(c)
		return
	}

	if err := p.store.DeleteComment(c.Request.Context(), post.ID, comment.ID); err != nil {
		common.RespondError(c, err)
		return
	}

	common.Redirect(c, "/posts/"+post.ID)
}
