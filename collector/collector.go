// Package collector is the HTTP API that lets several processes share one aggregation scope.
// It accepts log entries with POST, serves the snapshot with GET and clears the scope with DELETE,
// all at the root path.
package collector

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/circleci/netmonitor/httpserver/ginrouter"
	"github.com/circleci/netmonitor/o11y"
	"github.com/circleci/netmonitor/record"
	"github.com/circleci/netmonitor/store"
)

type API struct {
	router *gin.Engine
	store  store.Store
}

type Options struct {
	// Store holds the scope. Every write to it is applied as one unit.
	Store store.Store
}

func New(ctx context.Context, opts Options) *API {
	r := ginrouter.Default(ctx, "collector")
	a := &API{
		router: r,
		store:  opts.Store,
	}

	r.POST("/", a.log)
	r.GET("/", a.retrieve)
	r.DELETE("/", a.clear)

	return a
}

// Handler serves the API, compressing responses for clients that accept it.
func (a *API) Handler() http.Handler {
	return gzhttp.GzipHandler(a.router)
}

func (a *API) log(c *gin.Context) {
	ctx := c.Request.Context()

	var e record.Entry
	if err := c.ShouldBindJSON(&e); err != nil {
		o11y.AddField(ctx, "bind_error", err.Error())
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	o11y.AddField(ctx, "url", e.URL)

	if err := a.store.Log(ctx, e); err != nil {
		o11y.AddField(ctx, "store_error", err.Error())
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) retrieve(c *gin.Context) {
	ctx := c.Request.Context()

	snap, err := a.store.Retrieve(ctx)
	if err != nil {
		o11y.AddField(ctx, "store_error", err.Error())
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	o11y.AddField(ctx, "total_requests", snap.Summary.TotalRequests)
	c.JSON(http.StatusOK, snap)
}

func (a *API) clear(c *gin.Context) {
	ctx := c.Request.Context()

	if err := a.store.Clear(ctx); err != nil {
		o11y.AddField(ctx, "store_error", err.Error())
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}
