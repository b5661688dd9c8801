package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edgekit/captchad/captcha"
	"github.com/edgekit/captchad/store"
	"github.com/edgekit/captchad/utils"
)

// CaptchaController handles challenge generation, media retrieval, and
// verification endpoints.
type CaptchaController struct {
	gen         *captcha.Generator
	challenges  *store.TokenStore
	tokens      *store.TokenStore
	verifier    *store.Verifier
	backgrounds *store.BackgroundStore
	ttl         time.Duration
}

// NewCaptchaController wires the challenge lifecycle endpoints.
func NewCaptchaController(gen *captcha.Generator, challenges, tokens *store.TokenStore, verifier *store.Verifier, backgrounds *store.BackgroundStore, ttl time.Duration) *CaptchaController {
	return &CaptchaController{
		gen:         gen,
		challenges:  challenges,
		tokens:      tokens,
		verifier:    verifier,
		backgrounds: backgrounds,
		ttl:         ttl,
	}
}

// Generate creates a full challenge and stores only its code and
// customization; media is regenerated on every later fetch.
func (c *CaptchaController) Generate(ctx *gin.Context) {
	var req struct {
		ImageCustomization captcha.ImageOptions `json:"image_customization"`
		AudioCustomization captcha.AudioOptions `json:"audio_customization"`
	}
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request body")
			return
		}
	}

	cust := captcha.Customization{Image: req.ImageCustomization, Audio: req.AudioCustomization}
	if !c.resolveBackground(ctx, &cust.Image) {
		return
	}

	ch, err := c.gen.Create(ctx.Request.Context(), cust)
	if err != nil {
		c.generationError(ctx, err)
		return
	}

	rec, err := json.Marshal(store.ChallengeRecord{Code: ch.Code, Customization: cust})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to generate captcha")
		return
	}
	if err := c.challenges.Put(ctx.Request.Context(), ch.ID, rec, c.ttl); err != nil {
		utils.Sugar.Errorf("store challenge %s: %v", ch.ID, err)
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to generate captcha")
		return
	}

	utils.Success(ctx, gin.H{
		"captcha_id": ch.ID,
		"expires_at": time.Now().Add(c.ttl).UnixMilli(),
	})
}

// IssueToken generates a challenge of the requested type and binds it to a
// fresh verification token with attempts=0.
func (c *CaptchaController) IssueToken(ctx *gin.Context) {
	var req struct {
		Type          string          `json:"type"`
		Customization json.RawMessage `json:"customization"`
	}
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request body")
			return
		}
	}
	if req.Type == "" {
		req.Type = "image"
	}
	if req.Type != "image" && req.Type != "audio" {
		utils.Error(ctx, http.StatusBadRequest, 40002, `captcha type must be either "image" or "audio"`)
		return
	}

	var cust captcha.Customization
	if len(req.Customization) > 0 {
		var dst any
		switch req.Type {
		case "image":
			dst = &cust.Image
		case "audio":
			dst = &cust.Audio
		}
		if err := json.Unmarshal(req.Customization, dst); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40001, "invalid customization")
			return
		}
	}
	if !c.resolveBackground(ctx, &cust.Image) {
		return
	}

	ch, err := c.gen.Create(ctx.Request.Context(), cust)
	if err != nil {
		c.generationError(ctx, err)
		return
	}

	token := uuid.NewString()
	rec, err := json.Marshal(store.TokenRecord{
		Code:          ch.Code,
		Type:          req.Type,
		Customization: cust,
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to generate token")
		return
	}
	if err := c.tokens.Put(ctx.Request.Context(), token, rec, c.ttl); err != nil {
		utils.Sugar.Errorf("store token: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token":      token,
		"captcha_id": ch.ID,
		"expires_at": time.Now().Add(c.ttl).UnixMilli(),
	})
}

// Image regenerates and serves the PNG for a stored challenge id.
func (c *CaptchaController) Image(ctx *gin.Context) {
	rec, ok := c.loadChallenge(ctx, ctx.Param("id"))
	if !ok {
		return
	}
	opts := rec.Customization.Image
	opts.Format = captcha.FormatPNG
	if !c.resolveBackground(ctx, &opts) {
		return
	}
	img, err := c.gen.Renderer.Render(rec.Code, opts)
	if err != nil {
		utils.Sugar.Errorf("render challenge image: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate captcha image")
		return
	}
	ctx.Data(http.StatusOK, "image/png", img)
}

// Audio regenerates and serves the spoken form for a stored challenge id.
func (c *CaptchaController) Audio(ctx *gin.Context) {
	rec, ok := c.loadChallenge(ctx, ctx.Param("id"))
	if !ok {
		return
	}
	c.serveAudio(ctx, rec.Code, rec.Customization.Audio)
}

// ImageByToken serves "/captcha/<token>.<format>" where format is png or svg.
func (c *CaptchaController) ImageByToken(ctx *gin.Context) {
	token, format, ok := strings.Cut(ctx.Param("id"), ".")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
		return
	}
	format = strings.ToLower(format)
	if format != captcha.FormatPNG && format != captcha.FormatSVG {
		utils.Error(ctx, http.StatusBadRequest, 40003, "format must be either PNG or SVG")
		return
	}

	rec, ok := c.loadToken(ctx, token)
	if !ok {
		return
	}
	opts := rec.Customization.Image
	opts.Format = format
	if !c.resolveBackground(ctx, &opts) {
		return
	}
	img, err := c.gen.Renderer.Render(rec.Code, opts)
	if err != nil {
		utils.Sugar.Errorf("render token image: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate captcha image")
		return
	}

	contentType := "image/png"
	if format == captcha.FormatSVG {
		contentType = captcha.SVGContentType
	}
	ctx.Data(http.StatusOK, contentType, img)
}

// AudioByToken serves "/audio/<token>.mp3".
func (c *CaptchaController) AudioByToken(ctx *gin.Context) {
	token := strings.TrimSuffix(ctx.Param("id"), ".mp3")
	rec, ok := c.loadToken(ctx, token)
	if !ok {
		return
	}
	c.serveAudio(ctx, rec.Code, rec.Customization.Audio)
}

// Validate consumes one verification attempt for a token.
func (c *CaptchaController) Validate(ctx *gin.Context) {
	var req struct {
		Token    string `json:"token"`
		Response string `json:"response"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Token == "" || req.Response == "" {
		utils.Error(ctx, http.StatusBadRequest, 40004, "both token and response are required")
		return
	}

	res := c.verifier.Verify(ctx.Request.Context(), req.Token, req.Response)
	switch res.Status {
	case store.StatusSuccess:
		utils.Respond(ctx, http.StatusOK, 0, "captcha validated successfully", gin.H{
			"valid":              true,
			"attempts_remaining": 0,
		})
	case store.StatusFailure:
		utils.Respond(ctx, http.StatusOK, 0, "invalid captcha response", gin.H{
			"valid":              false,
			"attempts_remaining": res.AttemptsRemaining,
		})
	case store.StatusExhausted:
		utils.Error(ctx, http.StatusTooManyRequests, 42902, "maximum attempts reached, please generate a new captcha")
	default:
		utils.Error(ctx, http.StatusNotFound, 40401, "captcha not found or expired")
	}
}

func (c *CaptchaController) loadChallenge(ctx *gin.Context, id string) (store.ChallengeRecord, bool) {
	var rec store.ChallengeRecord
	raw, ok := c.challenges.Get(ctx.Request.Context(), id)
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40401, "captcha not found or expired")
		return rec, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		utils.Sugar.Errorf("decode challenge record %s: %v", id, err)
		utils.Error(ctx, http.StatusNotFound, 40401, "captcha not found or expired")
		return rec, false
	}
	return rec, true
}

func (c *CaptchaController) loadToken(ctx *gin.Context, token string) (store.TokenRecord, bool) {
	var rec store.TokenRecord
	raw, ok := c.tokens.Get(ctx.Request.Context(), token)
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40401, "captcha not found or expired")
		return rec, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		utils.Sugar.Errorf("decode token record: %v", err)
		utils.Error(ctx, http.StatusNotFound, 40401, "captcha not found or expired")
		return rec, false
	}
	return rec, true
}

func (c *CaptchaController) serveAudio(ctx *gin.Context, code string, opts captcha.AudioOptions) {
	audio, err := c.gen.Synth.Synthesize(ctx.Request.Context(), code, opts)
	if err != nil {
		utils.Sugar.Errorf("synthesize audio: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate audio captcha")
		return
	}
	ctx.Header("Content-Disposition", `attachment; filename="captcha.mp3"`)
	ctx.Data(http.StatusOK, c.gen.Synth.ContentType(), audio)
}

// resolveBackground swaps a background id for its stored bytes. It writes the
// error response itself and reports whether the caller may proceed.
func (c *CaptchaController) resolveBackground(ctx *gin.Context, opts *captcha.ImageOptions) bool {
	if opts.BackgroundID == "" {
		return true
	}
	data, err := c.backgrounds.Load(ctx.Request.Context(), opts.BackgroundID)
	if err != nil {
		if errors.Is(err, store.ErrBackgroundNotFound) {
			utils.Error(ctx, http.StatusBadRequest, 40005, "unknown background_id")
			return false
		}
		utils.Sugar.Errorf("load background %s: %v", opts.BackgroundID, err)
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to load background")
		return false
	}
	opts.Background = data
	return true
}

func (c *CaptchaController) generationError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, captcha.ErrInvalidSpeed),
		errors.Is(err, captcha.ErrInvalidNoise),
		errors.Is(err, captcha.ErrUnknownFormat):
		utils.Error(ctx, http.StatusBadRequest, 40006, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		ctx.Abort()
	default:
		utils.Sugar.Errorf("generate challenge: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to generate captcha")
	}
}
