package routes

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/any-hub/cdn-hub/internal/cdn"
)

// RegisterCDNRoutes 暴露 /-/cdn 诊断接口，供 SRE 查看上传缓存与监听表，
// gatherer 非空时同时挂载 /-/metrics。
func RegisterCDNRoutes(app *fiber.App, instance *cdn.CDN, gatherer prometheus.Gatherer) {
	if app == nil || instance == nil {
		return
	}

	app.Get("/-/cdn/status", func(c fiber.Ctx) error {
		return c.JSON(instance.Status())
	})

	// /-/cdn/url 与页面中的访问器行为一致：会触发上传，未完成时返回原文件名。
	app.Get("/-/cdn/url", func(c fiber.Ctx) error {
		file := strings.TrimSpace(c.Query("file"))
		if file == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file_required"})
		}
		immediate, err := parseBool(c.Query("immediate"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_immediate"})
		}

		url := instance.CDN(file, immediate)
		entry := instance.Lookup(file)
		return c.JSON(urlPayload{
			File:     file,
			URL:      url,
			State:    entry.State,
			Uploaded: url != file,
		})
	})

	if gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

type urlPayload struct {
	File     string    `json:"file"`
	URL      string    `json:"url"`
	State    cdn.State `json:"state"`
	Uploaded bool      `json:"uploaded"`
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func isNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
