package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-api/models"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/services"
)

type TransactionHandler struct {
	svc *services.TransactionService
}

func NewTransactionHandler(svc *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// ListTransactions returns one page, optionally narrowed with ?accountId=.
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	params, err := pageParams(c)
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.svc.List(c.Request.Context(), owner, params, models.TransactionFilter{AccountID: c.Query("accountId")})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	tx, err := h.svc.Get(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	in, err := h.input(c)
	if err != nil {
		respondError(c, err)
		return
	}

	tx, err := h.svc.Create(c.Request.Context(), owner, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	in, err := h.input(c)
	if err != nil {
		respondError(c, err)
		return
	}

	tx, err := h.svc.Update(c.Request.Context(), owner, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
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

func (h *TransactionHandler) input(c *gin.Context) (sanitize.TransactionInput, error) {
	p, err := readPayload(c)
	if err != nil {
		return sanitize.TransactionInput{}, err
	}
	return sanitize.ParseTransaction(p)
}
