package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"organizer/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Organizer, subs Subscriptions, logger *log.Logger, opts Options) {
	opts = opts.withDefaults()
	h := handlers{svc: svc, logger: logger, opts: opts}

	e.JSONSerializer = Serializer{}
	e.GET("/healthz", h.healthz)

	g := e.Group("/api", requestBodies())
	g.GET("/data", h.instrument("/api/data", h.getData))
	g.POST("/items", h.instrument("/api/items", h.createItem))
	g.PUT("/items/:id", h.instrument("/api/items/:id", h.updateItem))
	g.DELETE("/items/:id", h.instrument("/api/items/:id", h.deleteItem))
	g.POST("/folders", h.instrument("/api/folders", h.createFolder))
	g.PUT("/folders/:id", h.instrument("/api/folders/:id", h.updateFolder))
	g.DELETE("/folders/:id", h.instrument("/api/folders/:id", h.deleteFolder))
	g.PUT("/reorder", h.instrument("/api/reorder", h.reorder))
	g.GET("/stream", streamEvents(subs, opts.KeepAlive))
}

type handlers struct {
	svc    Organizer
	logger *log.Logger
	opts   Options
}

type handlerFunc func(ctx context.Context, c echo.Context, m *requestMetrics) error

func (h handlers) instrument(route string, fn handlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newRequestMetrics(c.Request().Context(), h.logger, route)
		c.SetRequest(c.Request().WithContext(spanCtx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		ctx, cancel := context.WithTimeout(spanCtx, h.opts.StoreTimeout)
		defer cancel()
		return fn(ctx, c, metrics)
	}
}

// timed runs a store-bound call and records its duration.
func timed(m *requestMetrics, fn func() error) error {
	start := time.Now()
	err := fn()
	m.ObserveStore(time.Since(start))
	return err
}

// fail maps err onto an HTTP response. Only unexpected failures are returned
// as errors so they reach the request log.
func fail(c echo.Context, m *requestMetrics, stage string, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		m.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Message: ve.Error(), Field: ve.Field})
	case errors.Is(err, domain.ErrNotFound):
		m.SetErrorStage("not_found")
		return c.JSON(http.StatusNotFound, errorResponse{Message: "not found"})
	case errors.Is(err, context.DeadlineExceeded):
		m.SetErrorStage(stage)
		if werr := c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "store timed out"}); werr != nil {
			return werr
		}
		return err
	default:
		m.SetErrorStage(stage)
		if werr := c.JSON(http.StatusInternalServerError, errorResponse{Message: "internal server error"}); werr != nil {
			return werr
		}
		return err
	}
}

func (h handlers) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.opts.StoreTimeout)
	defer cancel()
	if err := h.svc.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("health check failed")
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "store unavailable"})
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "ok"})
}

func (h handlers) getData(ctx context.Context, c echo.Context, m *requestMetrics) error {
	var snap domain.Snapshot
	if err := timed(m, func() (err error) {
		snap, err = h.svc.Snapshot(ctx)
		return err
	}); err != nil {
		return fail(c, m, "storage", err)
	}
	m.SetRecords(len(snap.Items) + len(snap.Folders))
	return c.JSON(http.StatusOK, snap)
}

func (h handlers) createItem(ctx context.Context, c echo.Context, m *requestMetrics) error {
	var in domain.NewItem
	if err := decodeBody(c, h.opts.BodyLimit, false, &in); err != nil {
		return fail(c, m, "decode", err)
	}
	var it domain.Item
	if err := timed(m, func() (err error) {
		it, err = h.svc.CreateItem(ctx, in)
		return err
	}); err != nil {
		return fail(c, m, "storage", err)
	}
	m.SetRecords(1)
	return c.JSON(http.StatusCreated, it)
}

func (h handlers) createFolder(ctx context.Context, c echo.Context, m *requestMetrics) error {
	var in domain.NewFolder
	if err := decodeBody(c, h.opts.BodyLimit, false, &in); err != nil {
		return fail(c, m, "decode", err)
	}
	var f domain.Folder
	if err := timed(m, func() (err error) {
		f, err = h.svc.CreateFolder(ctx, in)
		return err
	}); err != nil {
		return fail(c, m, "storage", err)
	}
	m.SetRecords(1)
	return c.JSON(http.StatusCreated, f)
}

// updateItem accepts a partial edit. Order and container fields in the body
// are ignored; only /api/reorder moves records.
func (h handlers) updateItem(ctx context.Context, c echo.Context, m *requestMetrics) error {
	var patch domain.ItemPatch
	if err := decodeBody(c, h.opts.BodyLimit, false, &patch); err != nil {
		return fail(c, m, "decode", err)
	}
	var it domain.Item
	if err := timed(m, func() (err error) {
		it, err = h.svc.UpdateItem(ctx, c.Param("id"), patch)
		return err
	}); err != nil {
		return fail(c, m, "storage", err)
	}
	m.SetRecords(1)
	return c.JSON(http.StatusOK, it)
}

func (h handlers) updateFolder(ctx context.Context, c echo.Context, m *requestMetrics) error {
	var patch domain.FolderPatch
	if err := decodeBody(c, h.opts.BodyLimit, false, &patch); err != nil {
		return fail(c, m, "decode", err)
	}
	var f domain.Folder
	if err := timed(m, func() (err error) {
		f, err = h.svc.UpdateFolder(ctx, c.Param("id"), patch)
		return err
	}); err != nil {
		return fail(c, m, "storage", err)
	}
	m.SetRecords(1)
	return c.JSON(http.StatusOK, f)
}

func (h handlers) deleteItem(ctx context.Context, c echo.Context, m *requestMetrics) error {
	if err := timed(m, func() error { return h.svc.DeleteItem(ctx, c.Param("id")) }); err != nil {
		return fail(c, m, "storage", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h handlers) deleteFolder(ctx context.Context, c echo.Context, m *requestMetrics) error {
	if err := timed(m, func() error { return h.svc.DeleteFolder(ctx, c.Param("id")) }); err != nil {
		return fail(c, m, "storage", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h handlers) reorder(ctx context.Context, c echo.Context, m *requestMetrics) error {
	var batch domain.ReorderBatch
	if err := decodeBody(c, h.opts.BodyLimit, true, &batch); err != nil {
		return fail(c, m, "decode", err)
	}
	m.SetRecords(len(batch.Items) + len(batch.Folders))
	if err := timed(m, func() error { return h.svc.Reorder(ctx, batch) }); err != nil {
		return fail(c, m, "reorder", err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Reorder successful"})
}
