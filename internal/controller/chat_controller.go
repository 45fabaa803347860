package controller

import (
	"errors"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/entity"
	"counsel-chat-be/internal/pkg/serverutils"
	"counsel-chat-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	ListCounterparts(ctx *fiber.Ctx) error
	ListConversations(ctx *fiber.Ctx) error
	StartConversation(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	PairHistory(ctx *fiber.Ctx) error
	MarkRead(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
	jwtSecret   string
}

func NewChatController(chatService service.IChatService, jwtSecret string) IChatController {
	return &chatController{
		chatService: chatService,
		jwtSecret:   jwtSecret,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.NewJwtMiddleware(c.jwtSecret))
	h.Get("counterparts", c.ListCounterparts)
	h.Get("conversations", c.ListConversations)
	h.Post("conversations", c.StartConversation)
	h.Get("conversations/:id/messages", c.History)
	h.Get("messages/:counterpartId", c.PairHistory)
	h.Put("messages/:counterpartId/read", c.MarkRead)
}

func (c *chatController) ListCounterparts(ctx *fiber.Ctx) error {
	userId, _ := serverutils.CurrentUserID(ctx)

	var req dto.ListCounterpartsRequest
	if err := ctx.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.ListCounterparts(ctx.UserContext(), userId, entity.UserRole(req.Role))
	if err != nil {
		return toHttpError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list counterparts", res))
}

func (c *chatController) ListConversations(ctx *fiber.Ctx) error {
	userId, _ := serverutils.CurrentUserID(ctx)

	res, err := c.chatService.ListConversations(ctx.UserContext(), userId)
	if err != nil {
		return toHttpError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list conversations", res))
}

func (c *chatController) StartConversation(ctx *fiber.Ctx) error {
	userId, _ := serverutils.CurrentUserID(ctx)

	var req dto.StartConversationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.StartConversation(ctx.UserContext(), userId, req.CounterpartId)
	if err != nil {
		return toHttpError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success start conversation", res))
}

func (c *chatController) History(ctx *fiber.Ctx) error {
	userId, _ := serverutils.CurrentUserID(ctx)

	conversationId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, service.ErrConversationNotFound.Error())
	}

	var req dto.HistoryRequest
	if err := ctx.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.History(ctx.UserContext(), userId, conversationId, req)
	if err != nil {
		return toHttpError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get history", res))
}

func (c *chatController) PairHistory(ctx *fiber.Ctx) error {
	userId, _ := serverutils.CurrentUserID(ctx)

	counterpartId := ctx.Params("counterpartId")
	if !serverutils.IsValidUserID(counterpartId) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid counterpart id")
	}

	res, err := c.chatService.PairHistory(ctx.UserContext(), userId, counterpartId)
	if err != nil {
		return toHttpError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get messages", res))
}

func (c *chatController) MarkRead(ctx *fiber.Ctx) error {
	userId, _ := serverutils.CurrentUserID(ctx)

	counterpartId := ctx.Params("counterpartId")
	if !serverutils.IsValidUserID(counterpartId) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid counterpart id")
	}

	n, err := c.chatService.MarkRead(ctx.UserContext(), userId, counterpartId)
	if err != nil {
		return toHttpError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Messages marked as read", dto.MarkReadResponse{Updated: n}))
}

// toHttpError maps service errors to a *fiber.Error for ErrorHandlerMiddleware.
func toHttpError(err error) error {
	var persistErr *service.PersistenceError
	switch {
	case errors.Is(err, service.ErrInvalidMessage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConversationNotFound), errors.Is(err, service.ErrProfileNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPairingNotAllowed):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.As(err, &persistErr):
		return fiber.NewError(fiber.StatusInternalServerError, "failed to "+persistErr.Op)
	default:
		return err
	}
}
