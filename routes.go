package main

import (
	"errors"
	"net/http"

	"github.com/campusrag/campusrag/pkg/client"
	"github.com/campusrag/campusrag/pkg/messaging"
	"github.com/campusrag/campusrag/rag"
	"github.com/campusrag/campusrag/rag/types"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mudler/xlog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newRouter(assistant *rag.Assistant, serviceName string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	messages := messaging.NewHandler(assistant, assistant.DefaultTopK())

	e.GET("/", index(serviceName))
	e.GET("/health", health(serviceName))
	e.GET("/stats", stats(assistant))
	e.POST("/query", query(assistant))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Twilio posts to the root when no webhook path is configured
	e.POST("/", webhook(messages))
	e.POST("/webhook/whatsapp", webhook(messages))
	e.POST("/webhook/sms", webhook(messages))

	return e
}

func index(serviceName string) func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"service":   serviceName,
			"status":    "healthy",
			"endpoints": []string{"/health", "/stats", "/query", "/webhook/whatsapp", "/webhook/sms", "/metrics"},
		})
	}
}

func health(serviceName string) func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, client.Health{Status: "healthy", Service: serviceName})
	}
}

func stats(assistant *rag.Assistant) func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, assistant.Stats(c.Request().Context()))
	}
}

func query(assistant *rag.Assistant) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(client.QueryRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		result, outcome, err := assistant.Ask(c.Request().Context(), r.Question, r.TopK)
		switch {
		case errors.Is(err, types.ErrEmptyQuestion):
			return c.JSON(http.StatusBadRequest, errorMessage("question missing"))
		case err != nil:
			xlog.Error("Query failed", "error", err)
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		case outcome == rag.OutcomeTimedOut:
			return c.JSON(http.StatusGatewayTimeout, errorMessage("query timed out"))
		}

		return c.JSON(http.StatusOK, result)
	}
}

// webhook answers Twilio SMS and WhatsApp messages with TwiML.
func webhook(messages *messaging.Handler) func(c echo.Context) error {
	return func(c echo.Context) error {
		reply := messages.Reply(c.Request().Context(), c.FormValue("Body"), c.FormValue("From"))

		body, err := messaging.TwiML(reply)
		if err != nil {
			xlog.Error("Failed to render TwiML", "error", err)
			body, _ = messaging.TwiML(messaging.ErrorReply)
		}
		return c.Blob(http.StatusOK, echo.MIMETextXMLCharsetUTF8, body)
	}
}

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}
