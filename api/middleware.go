package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// requestBodies normalizes write bodies before they reach the handlers. A
// gzip body is inflated, an identity body passes through, and any other
// content coding is refused with 415. Reads, including the event stream, are
// not touched.
func requestBodies() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodGet {
				return next(c)
			}
			codings := contentCodings(req.Header.Get(echo.HeaderContentEncoding))
			switch {
			case len(codings) == 0:
				return next(c)
			case len(codings) == 1 && codings[0] == "gzip":
				zr, err := gzip.NewReader(req.Body)
				if err != nil {
					_ = req.Body.Close()
					return c.JSON(http.StatusBadRequest, errorResponse{Message: "body is not valid gzip", Field: "body"})
				}
				req.Body = inflatedBody{Reader: zr, raw: req.Body}
				req.ContentLength = -1
				req.Header.Del(echo.HeaderContentEncoding)
				req.Header.Del(echo.HeaderContentLength)
				return next(c)
			default:
				return c.JSON(http.StatusUnsupportedMediaType, errorResponse{
					Message: "unsupported content encoding " + strings.Join(codings, ", "),
				})
			}
		}
	}
}

// contentCodings lists the non-identity codings of a Content-Encoding header.
func contentCodings(header string) []string {
	var out []string
	for _, part := range strings.Split(header, ",") {
		coding := strings.ToLower(strings.TrimSpace(part))
		if coding != "" && coding != "identity" {
			out = append(out, coding)
		}
	}
	return out
}

type inflatedBody struct {
	*gzip.Reader
	raw io.Closer
}

func (b inflatedBody) Close() error {
	err := b.Reader.Close()
	if cerr := b.raw.Close(); err == nil {
		err = cerr
	}
	return err
}
