package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/services"
)

// PlanningHandler serves CRUD for one planning entity. parse reads a create
// body when partial is false and a patch body otherwise.
type PlanningHandler[T, In any] struct {
	svc   *services.Planner[T, In]
	parse func(p sanitize.Payload, partial bool) (In, error)
}

func NewPlanningHandler[T, In any](svc *services.Planner[T, In], parse func(sanitize.Payload, bool) (In, error)) *PlanningHandler[T, In] {
	return &PlanningHandler[T, In]{svc: svc, parse: parse}
}

// Register mounts the handler under path on rg.
func (h *PlanningHandler[T, In]) Register(rg *gin.RouterGroup, path string) {
	rg.GET(path, h.List)
	rg.POST(path, h.Create)
	rg.GET(path+"/:id", h.Get)
	rg.PUT(path+"/:id", h.Update)
	rg.PATCH(path+"/:id", h.Update)
	rg.DELETE(path+"/:id", h.Delete)
}

func (h *PlanningHandler[T, In]) input(c *gin.Context, partial bool) (In, error) {
	p, err := readPayload(c)
	if err != nil {
		var zero In
		return zero, err
	}
	return h.parse(p, partial)
}

func (h *PlanningHandler[T, In]) List(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	params, err := pageParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	page, err := h.svc.List(c.Request.Context(), owner, params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PlanningHandler[T, In]) Get(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *PlanningHandler[T, In]) Create(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	in, err := h.input(c, false)
	if err != nil {
		respondError(c, err)
		return
	}
	rec, err := h.svc.Create(c.Request.Context(), owner, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *PlanningHandler[T, In]) Update(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	in, err := h.input(c, true)
	if err != nil {
		respondError(c, err)
		return
	}
	rec, err := h.svc.Update(c.Request.Context(), owner, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *PlanningHandler[T, In]) Delete(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), owner, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	deleted(c)
}
