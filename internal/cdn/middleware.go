package cdn

import "github.com/gofiber/fiber/v3"

// LocalsKey 是访问器在 fiber.Ctx Locals 中的键。
const LocalsKey = "cdn"

// Accessor 是每个请求可用的 URL 改写函数。
type Accessor func(filename string, immediate bool) string

// Accessor 返回绑定到当前实例的访问器。
func (c *CDN) Accessor() Accessor {
	return c.CDN
}

// Middleware 把访问器挂到每个请求上，后续 handler 通过 FromContext 取用。
func (c *CDN) Middleware() fiber.Handler {
	accessor := c.Accessor()
	return func(ctx fiber.Ctx) error {
		ctx.Locals(LocalsKey, accessor)
		return ctx.Next()
	}
}

// FromContext 取出 Middleware 注入的访问器。
func FromContext(ctx fiber.Ctx) (Accessor, bool) {
	if value := ctx.Locals(LocalsKey); value != nil {
		if accessor, ok := value.(Accessor); ok {
			return accessor, true
		}
	}
	return nil, false
}
