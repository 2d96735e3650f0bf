package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/campus-market/internal/httpx"
	"github.com/MikeMC777/campus-market/internal/product"
)

// @Summary     List approved products
// @Tags        products
// @Produce     json
// @Param       category query string false "category filter"
// @Success     200 {object} product.ListResponse
// @Failure     400 {object} httpx.HTTPError
// @Failure     503 {object} httpx.HTTPError
// @Router      /products [get]
func listProductsHandler(svc *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		category := product.Category(c.Query("category"))
		items, err := svc.ListApproved(c.Request.Context(), category)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, product.ListResponse{Category: category, Items: items})
	}
}

// @Summary     List the caller's products, approved or not
// @Tags        products
// @Produce     json
// @Success     200 {object} product.ListResponse
// @Router      /products/mine [get]
func myProductsHandler(svc *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListMine(c.Request.Context(), httpx.CurrentUser(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, product.ListResponse{Items: items})
	}
}

// @Summary     Get a product
// @Tags        products
// @Produce     json
// @Param       id path string true "product id"
// @Success     200 {object} product.Product
// @Failure     404 {object} httpx.HTTPError
// @Router      /products/{id} [get]
func getProductHandler(svc *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), httpx.CurrentUser(c), c.Param("id"))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// @Summary     Create a product listing
// @Description The listing stays hidden until an admin approves it.
// @Tags        products
// @Accept      json
// @Produce     json
// @Param       body body product.CreateProductRequest true "product"
// @Success     201 {object} product.Product
// @Failure     400 {object} httpx.HTTPError
// @Failure     403 {object} httpx.HTTPError
// @Router      /products [post]
func createProductHandler(svc *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req product.CreateProductRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		p, err := svc.Create(c.Request.Context(), httpx.CurrentUser(c), req)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

// @Summary     Update a product (partial)
// @Tags        products
// @Accept      json
// @Produce     json
// @Param       id   path string                       true "product id"
// @Param       body body product.UpdateProductRequest true "fields to change"
// @Success     200 {object} product.Product
// @Failure     400 {object} httpx.HTTPError
// @Failure     403 {object} httpx.HTTPError
// @Failure     404 {object} httpx.HTTPError
// @Router      /products/{id} [put]
func updateProductHandler(svc *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req product.UpdateProductRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		p, err := svc.Update(c.Request.Context(), httpx.CurrentUser(c), c.Param("id"), req)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// @Summary     Delete a product
// @Tags        products
// @Param       id path string true "product id"
// @Success     204
// @Failure     403 {object} httpx.HTTPError
// @Failure     404 {object} httpx.HTTPError
// @Router      /products/{id} [delete]
func deleteProductHandler(svc *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), httpx.CurrentUser(c), c.Param("id")); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary     List products waiting for approval
// @Tags        admin
// @Produce     json
// @Success     200 {object} product.ListResponse
// @Failure     403 {object} httpx.HTTPError
// @Router      /admin/products/pending [get]
func pendingProductsHandler(svc *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListPending(c.Request.Context(), httpx.CurrentUser(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, product.ListResponse{Items: items})
	}
}

// @Summary     Approve a product
// @Tags        admin
// @Param       id path string true "product id"
// @Success     204
// @Failure     403 {object} httpx.HTTPError
// @Failure     404 {object} httpx.HTTPError
// @Router      /admin/products/{id}/approve [post]
func approveProductHandler(svc *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Approve(c.Request.Context(), httpx.CurrentUser(c), c.Param("id")); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary     Reject and remove a product
// @Tags        admin
// @Accept      json
// @Param       id   path string                true  "product id"
// @Param       body body product.RejectRequest false "reason shown to the seller"
// @Success     204
// @Failure     403 {object} httpx.HTTPError
// @Failure     404 {object} httpx.HTTPError
// @Router      /admin/products/{id}/reject [post]
func rejectProductHandler(svc *product.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req product.RejectRequest
		if c.Request.ContentLength > 0 {
			if err := httpx.Bind(c, &req); err != nil {
				httpx.Error(c, err)
				return
			}
		}
		if err := svc.Reject(c.Request.Context(), httpx.CurrentUser(c), c.Param("id"), req.Reason); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
