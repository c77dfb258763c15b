package server

import (
	"context"
	"net/http"

	"partstore-core/internal/auth"
	"partstore-core/internal/handler"
	appmw "partstore-core/internal/middleware"
	"partstore-core/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	echo             *echo.Echo
	jwtService       *auth.JWTService
	orderHandler     *handler.OrderHandler
	paymentHandler   *handler.PaymentHandler
	inventoryHandler *handler.InventoryHandler
}

func NewServer(
	orderService service.OrderService,
	paymentService service.PaymentService,
	inventoryService service.InventoryService,
	jwtService *auth.JWTService,
	log *zap.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(log)

	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(appmw.Prometheus())

	s := &Server{
		echo:             e,
		jwtService:       jwtService,
		orderHandler:     handler.NewOrderHandler(orderService),
		paymentHandler:   handler.NewPaymentHandler(paymentService),
		inventoryHandler: handler.NewInventoryHandler(inventoryService),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := api.Group("/v1")
	requireAuth := appmw.RequireAuth(s.jwtService)

	// -------- orders --------
	orders := v1.Group("/pedidos", requireAuth)
	orders.POST("/checkout", s.orderHandler.Checkout)
	orders.GET("", s.orderHandler.ListOrders)
	orders.GET("/:id", s.orderHandler.GetOrder)

	// -------- payments --------
	// public; deliveries are authenticated by their signature
	v1.POST("/pagos/webhook", s.paymentHandler.Webhook)
	payments := v1.Group("/pagos", requireAuth)
	payments.POST("/preferencia", s.paymentHandler.CreatePreference)
	payments.GET("/:id", s.paymentHandler.GetPayment)

	// -------- admin --------
	admin := v1.Group("/admin", requireAuth, appmw.RequireAdmin())
	admin.PATCH("/pedidos/:id/status", s.orderHandler.UpdateStatus)

	admin.POST("/inventario/entrada", s.inventoryHandler.RegisterEntry)
	admin.POST("/inventario/salida", s.inventoryHandler.RegisterExit)
	admin.POST("/inventario/devolucion", s.inventoryHandler.RegisterReturn)

	admin.POST("/refacciones", s.inventoryHandler.CreatePart)
	admin.GET("/refacciones/:id", s.inventoryHandler.GetPart)
	admin.DELETE("/refacciones/:id", s.inventoryHandler.DeletePart)
	admin.GET("/refacciones/:id/movimientos", s.inventoryHandler.ListMovements)
	admin.GET("/refacciones/:id/conciliacion", s.inventoryHandler.Reconcile)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
