package handler

import (
	"counsel-chat-be/internal/pkg/logger"
	"counsel-chat-be/internal/pkg/serverutils"
	internalWS "counsel-chat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type WsHandler struct {
	gateway   *internalWS.Gateway
	jwtSecret string
	logger    logger.ILogger
}

func NewWsHandler(gateway *internalWS.Gateway, jwtSecret string, log logger.ILogger) *WsHandler {
	return &WsHandler{
		gateway:   gateway,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// ServeWs verifies the identity token before upgrading, so a session only ever
// starts out authenticated.
func (h *WsHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := serverutils.BearerToken(c)
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	userID, err := serverutils.ParseUserToken(h.jwtSecret, tokenStr)
	if err != nil {
		h.logger.Warn("WsHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.gateway.Serve(conn, userID)
	})(c)
}

func (h *WsHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
