package apiv1

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/NumeroFox/app/controllers"
)

// Spec is the OpenAPI document of the v1 API, also served by the docs UI.
//
//go:embed openapi.yml
var Spec []byte

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(Spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}

type Pong struct {
	Ping string `json:"ping"`
}

// APIServer binds the v1 operations to the controllers.
type APIServer struct {
	Orders    *controllers.OrderController
	Admin     *controllers.AdminController
	AdminAuth fiber.Handler
}

func NewAPIServer(orders *controllers.OrderController, admin *controllers.AdminController, adminAuth fiber.Handler) *APIServer {
	return &APIServer{Orders: orders, Admin: admin, AdminAuth: adminAuth}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// Route is one v1 operation. Path uses OpenAPI templating ("/orders/{id}").
type Route struct {
	Method string
	Path   string
	Admin  bool
	handle func(s *APIServer) fiber.Handler
}

// Routes lists every operation of the v1 API.
func Routes() []Route {
	return []Route{
		{Method: fiber.MethodGet, Path: "/ping", handle: func(s *APIServer) fiber.Handler { return s.GetPing }},
		{Method: fiber.MethodPost, Path: "/orders", handle: func(s *APIServer) fiber.Handler { return s.Orders.HandleCreateOrder }},
		{Method: fiber.MethodGet, Path: "/orders/{id}", handle: func(s *APIServer) fiber.Handler { return s.Orders.HandleGetOrder }},
		{Method: fiber.MethodGet, Path: "/orders/{id}/document", handle: func(s *APIServer) fiber.Handler { return s.Orders.HandleOrderDocument }},
		{Method: fiber.MethodPost, Path: "/previews", handle: func(s *APIServer) fiber.Handler { return s.Orders.HandleCreatePreview }},
		{Method: fiber.MethodPost, Path: "/admin/orders/{id}/kick", Admin: true, handle: func(s *APIServer) fiber.Handler { return s.Admin.HandleAdminKick }},
		{Method: fiber.MethodGet, Path: "/admin/orders/{id}/transitions", Admin: true, handle: func(s *APIServer) fiber.Handler { return s.Admin.HandleAdminTransitions }},
		{Method: fiber.MethodGet, Path: "/admin/queue", Admin: true, handle: func(s *APIServer) fiber.Handler { return s.Admin.HandleAdminQueue }},
	}
}

// RegisterHandlers mounts all routes on router.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	for _, r := range Routes() {
		handlers := []fiber.Handler{}
		if r.Admin {
			auth := s.AdminAuth
			if auth == nil {
				auth = denyAll
			}
			handlers = append(handlers, auth)
		}
		handlers = append(handlers, r.handle(s))
		router.Add(r.Method, fiberPath(r.Path), handlers...)
	}
}

func denyAll(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
}

// fiberPath turns "/orders/{id}" into "/orders/:id".
func fiberPath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			segments[i] = ":" + strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
		}
	}
	return strings.Join(segments, "/")
}
