package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"userdash/pkg/logging"
	"userdash/pkg/response"
)

type UserHandler struct {
	service UserService
	log     *slog.Logger
}

func NewUserHandler(service UserService, log *slog.Logger) *UserHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UserHandler{service: service, log: log}
}

func (h *UserHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/users", h.listUsers)
	router.GET("/users/stats", h.stats)
	router.GET("/users/:id", h.getUserByID)
	router.POST("/users", h.createUser)
	router.PUT("/users/:id", h.updateUser)
	router.PATCH("/users/:id", h.patchUser)
	router.DELETE("/users/:id", h.deleteUser)
}

// @Summary      List users
// @Tags         users
// @Produce      json
// @Param        search     query string false "Matches name, email, role or company"
// @Param        role       query string false "Admin, Editor or User"
// @Param        is_active  query bool   false "Active status"
// @Param        sort_by    query string false "id, name, email, role, company, created_at" default(id)
// @Param        sort_order query string false "asc or desc" default(desc)
// @Param        page       query int    false "Page number" default(1)
// @Param        per_page   query int    false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=[]User,pagination=Pagination}
// @Failure      422 {object} response.APIResponse
// @Failure      500 {object} response.APIResponse
// @Router       /users [get]
func (h *UserHandler) listUsers(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(DefaultPerPage)))
	if err != nil || perPage <= 0 {
		perPage = DefaultPerPage
	}

	f := ListFilters{
		Search:    c.Query("search"),
		Role:      Role(c.Query("role")),
		IsActive:  parseBoolQuery(c.Query("is_active")),
		SortBy:    c.DefaultQuery("sort_by", "id"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
		Page:      page,
		PerPage:   perPage,
	}

	list, err := h.service.ListUsers(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SendPage(c, "users listed", list.Items, list.Pagination)
}

// @Summary      User statistics
// @Tags         users
// @Produce      json
// @Success      200 {object} response.APIResponse{data=Stats}
// @Failure      500 {object} response.APIResponse
// @Router       /users/stats [get]
func (h *UserHandler) stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "stats fetched", stats)
}

// @Summary      Get user by ID
// @Tags         users
// @Produce      json
// @Param        id path int true "User ID"
// @Success      200 {object} response.APIResponse{data=User}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/{id} [get]
func (h *UserHandler) getUserByID(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	u, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "user fetched", u)
}

// @Summary      Create user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body UserInput true "Create user request"
// @Success      201 {object} response.APIResponse{data=User}
// @Failure      400 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Failure      500 {object} response.APIResponse
// @Router       /users [post]
func (h *UserHandler) createUser(c *gin.Context) {
	var req UserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid request payload", nil)
		return
	}

	u, err := h.service.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "user created", u)
}

// @Summary      Replace user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id      path int       true "User ID"
// @Param        request body UserInput true "Full user record"
// @Success      200 {object} response.APIResponse{data=User}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /users/{id} [put]
func (h *UserHandler) updateUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid request payload", nil)
		return
	}

	u, err := h.service.UpdateUser(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "user updated", u)
}

// @Summary      Partially update user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id      path int       true "User ID"
// @Param        request body UserPatch true "Fields to change"
// @Success      200 {object} response.APIResponse{data=User}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /users/{id} [patch]
func (h *UserHandler) patchUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UserPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendError(c, http.StatusBadRequest, "invalid request payload", nil)
		return
	}

	u, err := h.service.PatchUser(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "user updated", u)
}

// @Summary      Delete user
// @Tags         users
// @Produce      json
// @Param        id path int true "User ID"
// @Success      200 {object} response.APIResponse
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/{id} [delete]
func (h *UserHandler) deleteUser(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "user deleted", nil)
}

func (h *UserHandler) parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.SendError(c, http.StatusBadRequest, "invalid user id", nil)
		return 0, false
	}
	return id, true
}

func (h *UserHandler) respondError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		msg := "The given data was invalid."
		if errors.Is(err, ErrEmailTaken) {
			msg = "The email has already been taken."
		}
		response.SendError(c, http.StatusUnprocessableEntity, msg, verr.Fields)
	case errors.Is(err, ErrUserNotFound):
		response.SendError(c, http.StatusNotFound, "user not found", nil)
	default:
		h.log.Error("users request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			logging.Err(err))
		response.SendError(c, http.StatusInternalServerError, "internal server error", nil)
	}
}

func parseBoolQuery(v string) *bool {
	switch v {
	case "true", "1":
		b := true
		return &b
	case "false", "0":
		b := false
		return &b
	}
	return nil
}
