package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/cdn-hub/internal/remote"
)

// RegisterOriginRoutes 在 Remote.Type=disk 时把容器目录作为源站暴露在
// /-/origin/<container>/<object>，并回放上传时保存的 headers。
func RegisterOriginRoutes(app *fiber.App, store *remote.DiskStore) {
	if app == nil || store == nil {
		return
	}

	app.Get("/-/origin/:container/*", func(c fiber.Ctx) error {
		file, headers, err := store.OpenObject(c.Params("container"), c.Params("*"))
		if err != nil {
			if isNotFound(err) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "object_not_found"})
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_object"})
		}

		info, err := file.Stat()
		if err != nil {
			file.Close()
			return err
		}
		for key, values := range headers {
			for _, value := range values {
				c.Set(key, value)
			}
		}
		c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
		return c.SendStream(file, int(info.Size()))
	})
}
