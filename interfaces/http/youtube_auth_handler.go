package http

import (
	"fmt"
	"net/http"

	"reelpipe/infrastructure/logger"
	"reelpipe/usecase"

	"github.com/gin-gonic/gin"
)

type IYouTubeAuthHandler interface {
	GetAuthURL(c *gin.Context)
	HandleCallback(c *gin.Context)
}

type YouTubeAuthHandler struct {
	linkUsecase usecase.IAccountLinkUsecase
}

func NewYouTubeAuthHandler(linkUsecase usecase.IAccountLinkUsecase) IYouTubeAuthHandler {
	return &YouTubeAuthHandler{linkUsecase: linkUsecase}
}

// GetAuthURL handles GET /youtube/auth/:username
func (h *YouTubeAuthHandler) GetAuthURL(c *gin.Context) {
	username := c.Param("username")
	authURL, err := h.linkUsecase.AuthURL(c.Request.Context(), username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": authURL, "account": username})
}

// HandleCallback handles GET /youtube/callback. The OAuth state carries the
// account username.
func (h *YouTubeAuthHandler) HandleCallback(c *gin.Context) {
	if errorParam := c.Query("error"); errorParam != "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       fmt.Sprintf("OAuth error: %s", errorParam),
			"description": c.Query("error_description"),
		})
		return
	}
	username, err := h.linkUsecase.Callback(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		logger.GetLogger().WithError(err).Warn("Account link callback failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": username, "message": "Account linked"})
}
