package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/edgekit/captchad/captcha"
	"github.com/edgekit/captchad/middleware"
	"github.com/edgekit/captchad/store"
	"github.com/edgekit/captchad/utils"
)

var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// DefaultSettings are the per-credential rendering defaults accepted by the
// configure endpoint. They are validated at write time and stored without TTL.
type DefaultSettings struct {
	Font            string `json:"font,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	DistortionLevel string `json:"distortion_level,omitempty"`
}

// AdminController handles the API-key gated endpoints.
type AdminController struct {
	configs        *store.TokenStore
	backgrounds    *store.BackgroundStore
	maxUploadBytes int64
}

// NewAdminController wires the privileged endpoints.
func NewAdminController(configs *store.TokenStore, backgrounds *store.BackgroundStore, maxUploadMB int) *AdminController {
	return &AdminController{
		configs:        configs,
		backgrounds:    backgrounds,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// Configure validates and stores default rendering settings for the calling
// credential.
func (a *AdminController) Configure(ctx *gin.Context) {
	var req struct {
		DefaultSettings *DefaultSettings `json:"default_settings"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.DefaultSettings == nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "default_settings is required")
		return
	}

	s := req.DefaultSettings
	if s.BackgroundColor != "" && !hexColorRe.MatchString(s.BackgroundColor) {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid configuration values")
		return
	}
	switch s.DistortionLevel {
	case "", captcha.DistortionLight, captcha.DistortionMedium, captcha.DistortionHeavy:
	default:
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid configuration values")
		return
	}

	raw, err := json.Marshal(s)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to save configuration")
		return
	}
	keyID := ctx.GetString(middleware.ContextKeyIDKey)
	if err := a.configs.Put(ctx.Request.Context(), keyID, raw, 0); err != nil {
		utils.Sugar.Errorf("store configuration for %s: %v", keyID, err)
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to save configuration")
		return
	}

	utils.Respond(ctx, http.StatusOK, 0, "configuration updated successfully", nil)
}

// UploadBackground accepts a JPEG or PNG image and stores it for later use as
// a challenge background.
func (a *AdminController) UploadBackground(ctx *gin.Context) {
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40012, "no file uploaded")
		return
	}
	defer file.Close()

	if header.Size > a.maxUploadBytes {
		utils.Error(ctx, http.StatusBadRequest, 40013, fmt.Sprintf("file must be less than %dMB", a.maxUploadBytes>>20))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, a.maxUploadBytes+1))
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to process file upload")
		return
	}
	if int64(len(data)) > a.maxUploadBytes {
		utils.Error(ctx, http.StatusBadRequest, 40013, fmt.Sprintf("file must be less than %dMB", a.maxUploadBytes>>20))
		return
	}

	var ext string
	switch http.DetectContentType(data) {
	case "image/png":
		ext = ".png"
	case "image/jpeg":
		ext = ".jpg"
	default:
		utils.Error(ctx, http.StatusBadRequest, 40014, "file must be JPEG or PNG")
		return
	}

	keyID := ctx.GetString(middleware.ContextKeyIDKey)
	id, err := a.backgrounds.Save(ctx.Request.Context(), data, ext, keyID)
	if err != nil {
		utils.Sugar.Errorf("save background: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to upload background")
		return
	}

	utils.Success(ctx, gin.H{"background_id": id})
}

// Protected confirms a valid credential, useful as a connectivity probe.
func (a *AdminController) Protected(ctx *gin.Context) {
	utils.Respond(ctx, http.StatusOK, 0, "you have accessed a protected route", gin.H{
		"key_id": ctx.GetString(middleware.ContextKeyIDKey),
	})
}
