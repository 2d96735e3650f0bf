package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/cart"
	"github.com/MikeMC777/campus-market/internal/httpx"
	"github.com/MikeMC777/campus-market/internal/order"
	"github.com/MikeMC777/campus-market/internal/product"
)

func currentCart(c *gin.Context, carts *cart.Registry) (*cart.Cart, bool) {
	cc, err := carts.For(c.Request.Context(), httpx.CurrentUser(c).ID)
	if err != nil {
		httpx.Error(c, err)
		return nil, false
	}
	return cc, true
}

// @Summary     Get the caller's cart
// @Tags        cart
// @Produce     json
// @Success     200 {object} cart.View
// @Failure     503 {object} httpx.HTTPError
// @Router      /cart [get]
func getCartHandler(carts *cart.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		cc, ok := currentCart(c, carts)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, cart.NewView(cc.Items()))
	}
}

// @Summary     Add a product to the cart
// @Description Adding a product already in the cart increases its quantity.
// @Tags        cart
// @Accept      json
// @Produce     json
// @Param       body body cart.AddRequest true "product and quantity"
// @Success     200 {object} cart.View
// @Failure     400 {object} httpx.HTTPError
// @Failure     404 {object} httpx.HTTPError
// @Router      /cart/items [post]
func addCartItemHandler(carts *cart.Registry, products *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cart.AddRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		if req.ProductID == "" || req.Quantity <= 0 || req.Quantity > cart.MaxQuantity {
			httpx.Error(c, fmt.Errorf("%w: productId and a quantity between 1 and %d are required", apperr.ErrInvalidInput, cart.MaxQuantity))
			return
		}
		p, err := products.Get(c.Request.Context(), httpx.CurrentUser(c), req.ProductID)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		if !p.Approved {
			httpx.Error(c, fmt.Errorf("%w: product is not on sale yet", apperr.ErrInvalidInput))
			return
		}
		cc, ok := currentCart(c, carts)
		if !ok {
			return
		}
		err = cc.Add(c.Request.Context(), cart.Item{
			ProductID:  p.ID,
			Name:       p.Title,
			Image:      p.FirstImage(),
			Price:      p.Price,
			Quantity:   req.Quantity,
			SellerID:   p.SellerID,
			SellerName: p.SellerName,
		})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, cart.NewView(cc.Items()))
	}
}

// @Summary     Set the quantity of a cart line
// @Tags        cart
// @Accept      json
// @Produce     json
// @Param       productId path string               true "product id"
// @Param       body      body cart.QuantityRequest true "new quantity; 0 removes the line"
// @Success     200 {object} cart.View
// @Failure     404 {object} httpx.HTTPError
// @Router      /cart/items/{productId} [put]
func updateCartItemHandler(carts *cart.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cart.QuantityRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		cc, ok := currentCart(c, carts)
		if !ok {
			return
		}
		if err := cc.UpdateQuantity(c.Request.Context(), c.Param("productId"), req.Quantity); err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, cart.NewView(cc.Items()))
	}
}

// @Summary     Remove a cart line
// @Tags        cart
// @Produce     json
// @Param       productId path string true "product id"
// @Success     200 {object} cart.View
// @Router      /cart/items/{productId} [delete]
func removeCartItemHandler(carts *cart.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		cc, ok := currentCart(c, carts)
		if !ok {
			return
		}
		if err := cc.Remove(c.Request.Context(), c.Param("productId")); err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, cart.NewView(cc.Items()))
	}
}

// @Summary     Empty the cart
// @Tags        cart
// @Success     204
// @Router      /cart [delete]
func clearCartHandler(carts *cart.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		cc, ok := currentCart(c, carts)
		if !ok {
			return
		}
		if err := cc.Clear(c.Request.Context()); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary     Check out the cart
// @Description Creates one order per seller. Items whose product is gone are removed
// @Description from the cart and reported; nothing is created in that case.
// @Tags        orders
// @Accept      json
// @Produce     json
// @Param       body body order.CheckoutRequest true "payment and delivery"
// @Success     201 {object} order.CheckoutResponse
// @Failure     400 {object} httpx.HTTPError
// @Failure     404 {object} httpx.HTTPError
// @Failure     409 {object} httpx.HTTPError
// @Router      /checkout [post]
func checkoutHandler(carts *cart.Registry, orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CheckoutRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		cc, ok := currentCart(c, carts)
		if !ok {
			return
		}
		res, err := orders.Checkout(c.Request.Context(), httpx.CurrentUser(c), cc, req)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

// @Summary     List the caller's orders, newest first
// @Tags        orders
// @Produce     json
// @Success     200 {object} order.ListResponse
// @Router      /orders [get]
func myOrdersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListMine(c.Request.Context(), httpx.CurrentUser(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ListResponse{Items: items})
	}
}

// @Summary     List orders placed with the calling seller
// @Tags        orders
// @Produce     json
// @Success     200 {object} order.ListResponse
// @Failure     403 {object} httpx.HTTPError
// @Router      /orders/selling [get]
func sellingOrdersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListSelling(c.Request.Context(), httpx.CurrentUser(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ListResponse{Items: items})
	}
}

// @Summary     List every order
// @Tags        admin
// @Produce     json
// @Success     200 {object} order.ListResponse
// @Failure     403 {object} httpx.HTTPError
// @Router      /admin/orders [get]
func allOrdersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListAll(c.Request.Context(), httpx.CurrentUser(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ListResponse{Items: items})
	}
}

// @Summary     Get an order
// @Tags        orders
// @Produce     json
// @Param       id path string true "order id"
// @Success     200 {object} order.Detail
// @Failure     403 {object} httpx.HTTPError
// @Failure     404 {object} httpx.HTTPError
// @Router      /orders/{id} [get]
func getOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Get(c.Request.Context(), httpx.CurrentUser(c), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, order.NewDetail(o))
	}
}

// @Summary     Move an order to its next status
// @Tags        orders
// @Accept      json
// @Produce     json
// @Param       id   path string              true "order id"
// @Param       body body order.StatusRequest true "target status"
// @Success     200 {object} order.Detail
// @Failure     400 {object} httpx.HTTPError
// @Failure     403 {object} httpx.HTTPError
// @Failure     409 {object} httpx.HTTPError
// @Router      /orders/{id}/status [put]
func updateOrderStatusHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.StatusRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		o, err := svc.UpdateStatus(c.Request.Context(), httpx.CurrentUser(c), c.Param("id"), req.Status)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, order.NewDetail(o))
	}
}
