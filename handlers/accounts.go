package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/services"
)

type AccountHandler struct {
	svc *services.AccountService
}

func NewAccountHandler(svc *services.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
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

func (h *AccountHandler) GetAccount(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	acc, err := h.svc.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// CreateAccount opens a manual account.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	p, err := readPayload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	in, err := sanitize.ParseAccount(p)
	if err != nil {
		respondError(c, err)
		return
	}

	acc, err := h.svc.Create(c.Request.Context(), owner, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

// UpdateAccount renames a manual account. A balance in the body is ignored.
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	p, err := readPayload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	in, err := sanitize.ParseAccountPatch(p)
	if err != nil {
		respondError(c, err)
		return
	}

	acc, err := h.svc.Update(c.Request.Context(), owner, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *AccountHandler) DeleteAccount(c *gin.Context) {
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
