package controllers

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/app/repository"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/documents"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/fulfillment"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/numerology"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/render"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/security"
)

type PersonInput struct {
	Name      string `json:"name" validate:"required,max=200"`
	Birthdate string `json:"birthdate" validate:"required,max=32"`
}

func (p PersonInput) person() models.Person {
	return models.Person{Name: p.Name, Birthdate: p.Birthdate}
}

type CreateOrderRequest struct {
	UserID     string       `json:"user_id" validate:"required,max=64"`
	ReportType string       `json:"report_type" validate:"required,oneof=full compatibility"`
	Person     PersonInput  `json:"person" validate:"required"`
	Partner    *PersonInput `json:"partner,omitempty" validate:"omitempty"`
}

type PreviewRequest struct {
	Person PersonInput `json:"person" validate:"required"`
}

// OrderResponse is the public view of an order. Retry bookkeeping stays internal.
type OrderResponse struct {
	ID          string      `json:"id"`
	Code        string      `json:"code"`
	UserID      string      `json:"user_id"`
	ReportType  string      `json:"report_type"`
	State       string      `json:"state"`
	PriceAmount int64       `json:"price_amount"`
	Currency    string      `json:"currency"`
	PaidAt      interface{} `json:"paid_at"`
	DeliveredAt interface{} `json:"delivered_at"`
	CreatedAt   string      `json:"created_at"`
	DownloadURL string      `json:"download_url,omitempty"`
}

// OrderController serves the JSON order API.
type OrderController struct {
	orders      OrderService
	reader      repository.OrderReader
	documents   documents.Store
	tokenSecret string
	tokenTTL    time.Duration
	validate    *validator.Validate
}

func NewOrderController(orders OrderService, reader repository.OrderReader, docs documents.Store, tokenSecret string, tokenTTL time.Duration) *OrderController {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &OrderController{
		orders:      orders,
		reader:      reader,
		documents:   docs,
		tokenSecret: tokenSecret,
		tokenTTL:    tokenTTL,
		validate:    validator.New(),
	}
}

// HandleCreateOrder creates an order awaiting payment.
func (oc *OrderController) HandleCreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid JSON body")
	}
	if err := oc.validate.Struct(req); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_input", err.Error())
	}

	rr := fulfillment.ReportRequest{
		UserID:     strings.TrimSpace(req.UserID),
		ReportType: models.ReportType(req.ReportType),
		Person:     req.Person.person(),
	}
	if req.Partner != nil {
		partner := req.Partner.person()
		rr.Partner = &partner
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	order, err := oc.orders.RequestReport(ctx, rr)
	if err != nil {
		return oc.serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(oc.view(c, order))
}

// HandleGetOrder returns an order by id.
func (oc *OrderController) HandleGetOrder(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	order, err := oc.reader.GetByID(ctx, c.Params("id"))
	if err != nil {
		return oc.serviceError(c, err)
	}
	return c.JSON(oc.view(c, order))
}

// HandleCreatePreview returns the free preview without creating an order.
func (oc *OrderController) HandleCreatePreview(c *fiber.Ctx) error {
	var req PreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid JSON body")
	}
	if err := oc.validate.Struct(req); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_input", err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	result, err := oc.orders.BuildPreview(ctx, req.Person.person())
	if err != nil {
		return oc.serviceError(c, err)
	}
	return c.JSON(result)
}

// HandleOrderDocument streams the delivered document for a valid download token.
func (oc *OrderController) HandleOrderDocument(c *fiber.Ctx) error {
	orderID := c.Params("id")
	if oc.tokenSecret == "" {
		return jsonError(c, fiber.StatusNotFound, "not_found", "downloads are disabled")
	}
	if _, err := security.VerifyDownloadToken(c.Query("token"), orderID, oc.tokenSecret); err != nil {
		return jsonError(c, fiber.StatusForbidden, "forbidden", err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	order, err := oc.reader.GetByID(ctx, orderID)
	if err != nil {
		return oc.serviceError(c, err)
	}
	if order.State != models.OrderStateDelivered || order.DocumentRef == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "document not available")
	}

	content, contentType, err := oc.documents.Get(ctx, *order.DocumentRef)
	if err != nil {
		log.Errorf("[OrderAPI] Reading document of %s failed: %v", order.Code, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "document could not be read")
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+render.Filename(order.ReportType, order.Code)+`"`)
	return c.Send(content)
}

func (oc *OrderController) view(c *fiber.Ctx, order *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:          order.ID,
		Code:        order.Code,
		UserID:      order.UserID,
		ReportType:  string(order.ReportType),
		State:       string(order.State),
		PriceAmount: order.PriceAmount,
		Currency:    order.Currency,
		PaidAt:      formatTimePtr(order.PaidAt),
		DeliveredAt: formatTimePtr(order.DeliveredAt),
		CreatedAt:   order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if order.State == models.OrderStateDelivered && oc.tokenSecret != "" {
		token, err := security.GenerateDownloadToken(order.ID, oc.tokenTTL, oc.tokenSecret)
		if err != nil {
			log.Warnf("[OrderAPI] Download token for %s: %v", order.Code, err)
		} else {
			resp.DownloadURL = c.BaseURL() + "/api/v1/orders/" + url.PathEscape(order.ID) + "/document?token=" + url.QueryEscape(token)
		}
	}
	return resp
}

func (oc *OrderController) serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, numerology.ErrInvalidInput):
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_input", err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "order not found")
	}
	log.Errorf("[OrderAPI] %s %s failed: %v", c.Method(), c.Path(), err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "request failed")
}
