package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/blc-org/una/events"
	"github.com/blc-org/una/lnclient"
	"github.com/blc-org/una/logger"
	"github.com/blc-org/una/una"
)

type HttpService struct {
	svc         *una.UnaService
	backendType string
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func NewHttpService(svc *una.UnaService, backendType string) *HttpService {
	return &HttpService{
		svc:         svc,
		backendType: backendType,
	}
}

func (httpSvc *HttpService) RegisterSharedRoutes(e *echo.Echo) {
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogHost:      true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			logger.HttpLogger.Info().
				Str("uri", values.URI).
				Int("status", values.Status).
				Str("remote_ip", values.RemoteIP).
				Str("user_agent", values.UserAgent).
				Str("host", values.Host).
				Str("request_id", values.RequestID).
				Msg("handled API request")
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/api/info", httpSvc.infoHandler)
	e.POST("/api/invoices", httpSvc.createInvoiceHandler)
	e.GET("/api/invoices/:paymentHash", httpSvc.getInvoiceHandler)
	e.POST("/api/payments", httpSvc.payInvoiceHandler)
	e.GET("/api/events", httpSvc.eventsHandler)
}

func (httpSvc *HttpService) infoHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"backendType": httpSvc.backendType,
	})
}

func (httpSvc *HttpService) createInvoiceHandler(c echo.Context) error {
	var params lnclient.CreateInvoiceParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: fmt.Sprintf("Bad request: %s", err.Error()),
		})
	}

	invoice, err := httpSvc.svc.CreateInvoice(c.Request().Context(), &params)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, invoice)
}

func (httpSvc *HttpService) getInvoiceHandler(c echo.Context) error {
	invoice, err := httpSvc.svc.GetInvoice(c.Request().Context(), c.Param("paymentHash"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, invoice)
}

func (httpSvc *HttpService) payInvoiceHandler(c echo.Context) error {
	var params lnclient.PayInvoiceParams
	if err := c.Bind(&params); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: fmt.Sprintf("Bad request: %s", err.Error()),
		})
	}

	response, err := httpSvc.svc.PayInvoice(c.Request().Context(), &params)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, response)
}

// eventsHandler streams invoice-updated events to the caller as
// server-sent events until the client disconnects.
func (httpSvc *HttpService) eventsHandler(c echo.Context) error {
	httpSvc.svc.StartWatchingInvoices(c.Request().Context())

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	queue := httpSvc.svc.WatchInvoices()
	ctx := c.Request().Context()
	for {
		event, err := queue.NextEvent(ctx)
		if err != nil {
			return nil
		}
		invoiceUpdated, ok := event.(*events.InvoiceUpdatedEvent)
		if !ok {
			continue
		}
		payload, err := json.Marshal(invoiceUpdated.Invoice)
		if err != nil {
			logger.Logger.Error().Err(err).Msg("Failed to encode invoice event")
			continue
		}
		if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event.EventType(), payload); err != nil {
			return nil
		}
		c.Response().Flush()
	}
}

func errorResponse(c echo.Context, err error) error {
	var validationErr *lnclient.ValidationError
	var notFoundErr *lnclient.NotFoundError
	var authErr *lnclient.AuthError
	var backendErr *lnclient.BackendError

	switch {
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	case errors.As(err, &notFoundErr):
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
	case errors.As(err, &authErr):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Message: err.Error()})
	case errors.As(err, &backendErr):
		return c.JSON(http.StatusBadGateway, ErrorResponse{Message: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
}
