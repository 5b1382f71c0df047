package server

import (
	"errors"
	"os"
	"path"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/cdn-hub/internal/cdn"
)

// AppOptions controls how the Fiber application serves the asset root.
type AppOptions struct {
	Logger *logrus.Logger
	CDN    *cdn.CDN
	// Immediate 透传给访问器，命中乐观 URL 时直接重定向。
	Immediate bool
	// IndexFile 是目录请求对应的页面，默认 index.html。
	IndexFile string
}

const contextKeyRequestID = "_cdnhub_request_id"

// NewApp builds a Fiber application with request-id, CDN accessor and asset
// handlers wired in order.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.CDN == nil {
		return nil, errors.New("cdn instance is required")
	}
	if opts.IndexFile == "" {
		opts.IndexFile = "index.html"
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	app.Use(opts.CDN.Middleware())

	app.Get("/*", assetHandler(opts))

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并回写到响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// assetHandler 处理静态资源：HTML 改写引用，其余资源优先重定向到 CDN，未上传时回源本地磁盘。
func assetHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqPath := string(c.Request().URI().Path())
		if isDiagnosticsPath(reqPath) {
			return c.Next()
		}

		name := strings.TrimPrefix(reqPath, "/")
		if name == "" || strings.HasSuffix(name, "/") {
			name += opts.IndexFile
		}

		localPath, err := opts.CDN.LocalPath(name)
		if err != nil {
			return renderNotFound(c, opts.Logger, name, err)
		}
		info, err := os.Stat(localPath)
		if err != nil || !info.Mode().IsRegular() {
			return renderNotFound(c, opts.Logger, name, err)
		}

		accessor, ok := cdn.FromContext(c)
		if !ok {
			return c.SendFile(localPath)
		}

		if isHTML(name) {
			return serveHTML(c, opts, name, localPath, accessor)
		}

		if target := accessor(name, opts.Immediate); target != name {
			opts.Logger.WithFields(logrus.Fields{
				"action":     "redirect",
				"key":        name,
				"target":     target,
				"request_id": RequestID(c),
			}).Debug("asset redirected")
			return c.Redirect().Status(fiber.StatusFound).To(target)
		}
		return c.SendFile(localPath)
	}
}

func serveHTML(c fiber.Ctx, opts AppOptions, name, localPath string, accessor cdn.Accessor) error {
	file, err := os.Open(localPath)
	if err != nil {
		return renderNotFound(c, opts.Logger, localPath, err)
	}
	defer file.Close()

	page, err := cdn.RewriteHTML(file, name, accessor, opts.Immediate)
	if err != nil {
		opts.Logger.WithError(err).WithFields(logrus.Fields{
			"action":     "rewrite",
			"path":       localPath,
			"request_id": RequestID(c),
		}).Warn("html rewrite failed, serving original")
		return c.SendFile(localPath)
	}
	c.Type("html", "utf-8")
	return c.SendString(page)
}

func renderNotFound(c fiber.Ctx, logger *logrus.Logger, name string, err error) error {
	fields := logrus.Fields{
		"action":     "asset_lookup",
		"key":        name,
		"request_id": RequestID(c),
	}
	entry := logger.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("asset not found")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "asset_not_found",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isHTML(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
