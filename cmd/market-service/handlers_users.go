package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/campus-market/internal/apperr"
	"github.com/MikeMC777/campus-market/internal/httpx"
	"github.com/MikeMC777/campus-market/internal/notify"
	"github.com/MikeMC777/campus-market/internal/seller"
	"github.com/MikeMC777/campus-market/internal/user"
)

// @Summary     Register or update the caller's profile
// @Tags        users
// @Accept      json
// @Produce     json
// @Param       X-User-ID header string              true "authenticated user id"
// @Param       body      body   user.ProfileRequest true "profile"
// @Success     200 {object} user.User
// @Failure     400 {object} httpx.HTTPError
// @Router      /users/register [post]
func registerHandler(svc *user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.ProfileRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		u, err := svc.Register(c.Request.Context(), c.GetHeader(httpx.UserIDHeader), req)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// @Summary     The signed-in user
// @Tags        users
// @Produce     json
// @Success     200 {object} user.User
// @Failure     403 {object} httpx.HTTPError
// @Router      /me [get]
func meHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, httpx.CurrentUser(c))
	}
}

// @Summary     End the caller's session
// @Description Drops the cached cart and role; the stored cart is kept.
// @Tags        users
// @Success     204
// @Router      /signout [post]
func signOutHandler(sessions *user.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions.SignOut(c.Request.Context(), httpx.CurrentUser(c).ID)
		c.Status(http.StatusNoContent)
	}
}

// @Summary     List users
// @Tags        admin
// @Produce     json
// @Success     200 {array} user.User
// @Failure     403 {object} httpx.HTTPError
// @Router      /admin/users [get]
func listUsersHandler(svc *user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := svc.List(c.Request.Context(), httpx.CurrentUser(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": users})
	}
}

// @Summary     Activate or deactivate an account
// @Tags        admin
// @Accept      json
// @Param       id   path string             true "user id"
// @Param       body body user.ActiveRequest true "new state"
// @Success     204
// @Failure     400 {object} httpx.HTTPError
// @Failure     403 {object} httpx.HTTPError
// @Router      /admin/users/{id}/active [put]
func setActiveHandler(svc *user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req user.ActiveRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		if req.Active == nil {
			httpx.Error(c, fmt.Errorf("%w: active is required", apperr.ErrInvalidInput))
			return
		}
		if err := svc.SetActive(c.Request.Context(), httpx.CurrentUser(c), c.Param("id"), *req.Active); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary     Apply to become a seller
// @Tags        sellers
// @Accept      json
// @Produce     json
// @Param       body body seller.SubmitRequest true "application"
// @Success     201 {object} seller.Application
// @Failure     400 {object} httpx.HTTPError
// @Failure     409 {object} httpx.HTTPError
// @Router      /seller-applications [post]
func submitApplicationHandler(svc *seller.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req seller.SubmitRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		a, err := svc.Submit(c.Request.Context(), httpx.CurrentUser(c), req)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

// @Summary     The caller's seller applications
// @Tags        sellers
// @Produce     json
// @Success     200 {array} seller.Application
// @Router      /seller-applications/mine [get]
func myApplicationsHandler(svc *seller.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListMine(c.Request.Context(), httpx.CurrentUser(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// @Summary     Pending seller applications, newest first
// @Tags        admin
// @Produce     json
// @Success     200 {array} seller.Application
// @Failure     403 {object} httpx.HTTPError
// @Router      /admin/seller-applications [get]
func pendingApplicationsHandler(svc *seller.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListPending(c.Request.Context(), httpx.CurrentUser(c))
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// @Summary     Approve or reject a seller application
// @Tags        admin
// @Accept      json
// @Produce     json
// @Param       id   path string               true "application id"
// @Param       body body seller.ReviewRequest true "decision"
// @Success     200 {object} seller.Application
// @Failure     403 {object} httpx.HTTPError
// @Failure     409 {object} httpx.HTTPError
// @Router      /admin/seller-applications/{id}/review [post]
func reviewApplicationHandler(svc *seller.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req seller.ReviewRequest
		if err := httpx.Bind(c, &req); err != nil {
			httpx.Error(c, err)
			return
		}
		a, err := svc.Review(c.Request.Context(), httpx.CurrentUser(c), c.Param("id"), req)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// @Summary     The caller's notifications, newest first
// @Tags        notifications
// @Produce     json
// @Success     200 {array} notify.Notification
// @Router      /notifications [get]
func listNotificationsHandler(svc *notify.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListMine(c.Request.Context(), httpx.CurrentUser(c).ID)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// @Summary     Mark a notification read
// @Tags        notifications
// @Param       id path string true "notification id"
// @Success     204
// @Failure     403 {object} httpx.HTTPError
// @Failure     404 {object} httpx.HTTPError
// @Router      /notifications/{id}/read [post]
func markNotificationReadHandler(svc *notify.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.MarkRead(c.Request.Context(), httpx.CurrentUser(c).ID, c.Param("id")); err != nil {
			httpx.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
