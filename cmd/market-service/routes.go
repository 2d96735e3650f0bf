package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/MikeMC777/campus-market/docs"
	"github.com/MikeMC777/campus-market/internal/httpx"
)

func newRouter(a *app) *gin.Engine {
	r := gin.New()
	r.Use(httpx.RequestID(), httpx.Logger(a.log), httpx.Recovery(a.log))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Open to any identified caller, including ones without a profile yet.
	r.POST("/users/register", registerHandler(a.users))
	r.GET("/products", listProductsHandler(a.products))

	auth := r.Group("/", httpx.Session(a.sessions))
	{
		auth.GET("/me", meHandler())
		auth.POST("/signout", signOutHandler(a.sessions))

		auth.GET("/products/mine", myProductsHandler(a.products))
		auth.GET("/products/:id", getProductHandler(a.products))
		auth.POST("/products", createProductHandler(a.products))
		auth.PUT("/products/:id", updateProductHandler(a.products))
		auth.DELETE("/products/:id", deleteProductHandler(a.products))

		auth.GET("/cart", getCartHandler(a.carts))
		auth.POST("/cart/items", addCartItemHandler(a.carts, a.products))
		auth.PUT("/cart/items/:productId", updateCartItemHandler(a.carts))
		auth.DELETE("/cart/items/:productId", removeCartItemHandler(a.carts))
		auth.DELETE("/cart", clearCartHandler(a.carts))
		auth.POST("/checkout", checkoutHandler(a.carts, a.orders))

		auth.GET("/orders", myOrdersHandler(a.orders))
		auth.GET("/orders/selling", sellingOrdersHandler(a.orders))
		auth.GET("/orders/:id", getOrderHandler(a.orders))
		auth.PUT("/orders/:id/status", updateOrderStatusHandler(a.orders))

		auth.POST("/seller-applications", submitApplicationHandler(a.sellers))
		auth.GET("/seller-applications/mine", myApplicationsHandler(a.sellers))

		auth.POST("/chats", openChatHandler(a.chats))
		auth.GET("/chats", listChatsHandler(a.chats))
		auth.GET("/chats/:id/messages", listMessagesHandler(a.chats))
		auth.POST("/chats/:id/messages", sendMessageHandler(a.chats))
		auth.POST("/chats/:id/read", markChatReadHandler(a.chats))

		auth.GET("/notifications", listNotificationsHandler(a.notifications))
		auth.POST("/notifications/:id/read", markNotificationReadHandler(a.notifications))

		admin := auth.Group("/admin")
		admin.GET("/users", listUsersHandler(a.users))
		admin.PUT("/users/:id/active", setActiveHandler(a.users))
		admin.GET("/products/pending", pendingProductsHandler(a.products))
		admin.POST("/products/:id/approve", approveProductHandler(a.products))
		admin.POST("/products/:id/reject", rejectProductHandler(a.products))
		admin.GET("/orders", allOrdersHandler(a.orders))
		admin.GET("/seller-applications", pendingApplicationsHandler(a.sellers))
		admin.POST("/seller-applications/:id/review", reviewApplicationHandler(a.sellers))

		ws := auth.Group("/ws")
		ws.GET("/cart", cartStreamHandler(a.streamer, a.carts))
		ws.GET("/orders", myOrdersStreamHandler(a.streamer, a.orders))
		ws.GET("/orders/selling", sellingOrdersStreamHandler(a.streamer, a.orders))
		ws.GET("/chats", chatsStreamHandler(a.streamer, a.chats))
		ws.GET("/chats/:id/messages", messagesStreamHandler(a.streamer, a.chats))
	}
	return r
}
