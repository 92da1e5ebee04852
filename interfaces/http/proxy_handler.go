package http

import (
	"net/http"

	"reelpipe/usecase"

	"github.com/gin-gonic/gin"
)

type IProxyHandler interface {
	CheckAll(c *gin.Context)
	Statistics(c *gin.Context)
	CheckAccount(c *gin.Context)
	AutoDisable(c *gin.Context)
}

type ProxyHandler struct {
	proxyUsecase usecase.IProxyUsecase
}

func NewProxyHandler(proxyUsecase usecase.IProxyUsecase) IProxyHandler {
	return &ProxyHandler{proxyUsecase: proxyUsecase}
}

func (h *ProxyHandler) CheckAll(c *gin.Context) {
	res, err := h.proxyUsecase.CheckAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ProxyHandler) Statistics(c *gin.Context) {
	res, err := h.proxyUsecase.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CheckAccount handles POST /accounts/:username/proxy/check
func (h *ProxyHandler) CheckAccount(c *gin.Context) {
	res, err := h.proxyUsecase.CheckByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ProxyHandler) AutoDisable(c *gin.Context) {
	res, err := h.proxyUsecase.AutoDisable(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
