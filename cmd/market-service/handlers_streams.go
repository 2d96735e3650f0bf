package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/campus-market/internal/cart"
	"github.com/MikeMC777/campus-market/internal/chat"
	"github.com/MikeMC777/campus-market/internal/httpx"
	"github.com/MikeMC777/campus-market/internal/order"
	"github.com/MikeMC777/campus-market/internal/realtime"
)

// stream serves subscribe over a WebSocket. Errors raised before the
// upgrade are answered as plain HTTP errors.
func stream[T any](s *realtime.Streamer, subscribe func(*gin.Context) realtime.SubscribeFunc[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := realtime.Stream(s, c.Writer, c.Request, subscribe(c)); err != nil {
			httpx.Error(c, err)
		}
	}
}

// @Summary     Stream the caller's cart
// @Description WebSocket. Each frame is {"type":"snapshot","items":[...]}.
// @Tags        streams
// @Router      /ws/cart [get]
func cartStreamHandler(s *realtime.Streamer, carts *cart.Registry) gin.HandlerFunc {
	return stream(s, func(c *gin.Context) realtime.SubscribeFunc[cart.Item] {
		return func(ctx context.Context, push func([]cart.Item)) (func(), error) {
			return carts.Subscribe(ctx, httpx.CurrentUser(c).ID, push)
		}
	})
}

// @Summary     Stream the caller's orders, newest first
// @Tags        streams
// @Router      /ws/orders [get]
func myOrdersStreamHandler(s *realtime.Streamer, svc *order.Service) gin.HandlerFunc {
	return stream(s, func(c *gin.Context) realtime.SubscribeFunc[order.Order] {
		return func(ctx context.Context, push func([]order.Order)) (func(), error) {
			return svc.SubscribeMine(ctx, httpx.CurrentUser(c), push)
		}
	})
}

// @Summary     Stream the calling seller's incoming orders
// @Tags        streams
// @Router      /ws/orders/selling [get]
func sellingOrdersStreamHandler(s *realtime.Streamer, svc *order.Service) gin.HandlerFunc {
	return stream(s, func(c *gin.Context) realtime.SubscribeFunc[order.Order] {
		return func(ctx context.Context, push func([]order.Order)) (func(), error) {
			return svc.SubscribeSelling(ctx, httpx.CurrentUser(c), push)
		}
	})
}

// @Summary     Stream the caller's chat list
// @Tags        streams
// @Router      /ws/chats [get]
func chatsStreamHandler(s *realtime.Streamer, svc *chat.Service) gin.HandlerFunc {
	return stream(s, func(c *gin.Context) realtime.SubscribeFunc[chat.Chat] {
		return func(ctx context.Context, push func([]chat.Chat)) (func(), error) {
			return svc.SubscribeChats(ctx, httpx.CurrentUser(c), push)
		}
	})
}

// @Summary     Stream a chat's messages, oldest first
// @Tags        streams
// @Param       id path string true "chat id"
// @Router      /ws/chats/{id}/messages [get]
func messagesStreamHandler(s *realtime.Streamer, svc *chat.Service) gin.HandlerFunc {
	return stream(s, func(c *gin.Context) realtime.SubscribeFunc[chat.Message] {
		return func(ctx context.Context, push func([]chat.Message)) (func(), error) {
			return svc.SubscribeMessages(ctx, httpx.CurrentUser(c), c.Param("id"), push)
		}
	})
}
