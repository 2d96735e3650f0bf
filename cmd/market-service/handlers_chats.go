package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/campus-market/internal/chat"
	"github.com/MikeMC777/campus-market/internal/httpx"
)

// @Summary     Open (or reuse) the chat with another user
// @Tags        chats
// @Accept      json
// @Produce     json
// @Param       body body chat.OpenRequest true "peer"
// @Success     200 {object} chat.Chat
// @Failure     400 {object} httpx.HTTPError
// @Failure     404 {object} httpx.HTTPError
// @Router      /chats [post]
func openChatHandler(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chat.OpenRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		ch, err := svc.Open(c.Request.Context(), httpx.CurrentUser(c), req)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, ch)
	}
}

// @Summary     The caller's chats, latest activity first
// @Description A slow store yields an empty list instead of an error.
// @Tags        chats
// @Produce     json
// @Success     200 {array} chat.Chat
// @Router      /chats [get]
func listChatsHandler(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListChats(c.Request.Context(), httpx.CurrentUser(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// @Summary     Messages of a chat, oldest first
// @Tags        chats
// @Produce     json
// @Param       id path string true "chat id"
// @Success     200 {array} chat.Message
// @Failure     403 {object} httpx.HTTPError
// @Router      /chats/{id}/messages [get]
func listMessagesHandler(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.Messages(c.Request.Context(), httpx.CurrentUser(c), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// @Summary     Send a message
// @Tags        chats
// @Accept      json
// @Produce     json
// @Param       id   path string           true "chat id"
// @Param       body body chat.SendRequest true "message"
// @Success     201 {object} chat.Message
// @Failure     400 {object} httpx.HTTPError
// @Failure     403 {object} httpx.HTTPError
// @Router      /chats/{id}/messages [post]
func sendMessageHandler(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chat.SendRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		m, err := svc.Send(c.Request.Context(), httpx.CurrentUser(c), c.Param("id"), req)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, m)
	}
}

// @Summary     Mark a chat read
// @Tags        chats
// @Param       id path string true "chat id"
// @Success     204
// @Failure     403 {object} httpx.HTTPError
// @Router      /chats/{id}/read [post]
func markChatReadHandler(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.MarkRead(c.Request.Context(), httpx.CurrentUser(c), c.Param("id")); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
