package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekit/captchad/captcha"
	"github.com/edgekit/captchad/store"
)

// toneEngine stands in for the external speech synthesizer.
type toneEngine struct{}

func (toneEngine) Speak(context.Context, string) (captcha.PCM, error) {
	samples := make([]float64, 4000)
	for i := range samples {
		samples[i] = 0.4 * math.Sin(2*math.Pi*440*float64(i)/8000)
	}
	return captcha.PCM{SampleRate: 8000, Samples: samples}, nil
}

type testEnv struct {
	router *gin.Engine
	client *redis.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	gen := captcha.NewGenerator(
		captcha.NewRenderer(captcha.NewFontRegistry()),
		captcha.NewSynthesizer(toneEngine{}, captcha.WAVEncoder{}),
	)
	challenges := store.NewTokenStore(client, "captcha")
	tokens := store.NewTokenStore(client, "token")
	bgMeta := store.NewTokenStore(client, "background")
	backgrounds, err := store.NewBackgroundStore(bgMeta, t.TempDir())
	require.NoError(t, err)
	verifier := store.NewVerifier(client, "token", 3)

	cc := NewCaptchaController(gen, challenges, tokens, verifier, backgrounds, 3*time.Minute)

	r := gin.New()
	r.POST("/api/captcha/generate", cc.Generate)
	r.POST("/api/generate-token", cc.IssueToken)
	r.GET("/api/captcha/:id", cc.ImageByToken)
	r.GET("/api/captcha/:id/image", cc.Image)
	r.GET("/api/captcha/:id/audio", cc.Audio)
	r.GET("/api/audio/:id", cc.AudioByToken)
	r.POST("/api/validate", cc.Validate)

	return &testEnv{router: r, client: client}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (int, string, map[string]any) {
	t.Helper()
	var body struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code, body.Message, body.Data
}

// storedCode reads the code backing a token straight from the store.
func (e *testEnv) storedCode(t *testing.T, token string) string {
	t.Helper()
	raw, err := e.client.Get(context.Background(), "token:"+token).Bytes()
	require.NoError(t, err)
	var rec store.TokenRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	return rec.Code
}

func TestGenerateAndFetchMedia(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/captcha/generate", "")
	require.Equal(t, http.StatusOK, w.Code)
	code, _, data := decodeEnvelope(t, w)
	assert.Zero(t, code)
	id, _ := data["captcha_id"].(string)
	require.NotEmpty(t, id)
	assert.Greater(t, data["expires_at"].(float64), float64(time.Now().UnixMilli()))

	img := env.do(t, http.MethodGet, "/api/captcha/"+id+"/image", "")
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "image/png", img.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(img.Body.Bytes(), []byte("\x89PNG")))

	audio := env.do(t, http.MethodGet, "/api/captcha/"+id+"/audio", "")
	require.Equal(t, http.StatusOK, audio.Code)
	assert.Equal(t, "audio/wav", audio.Header().Get("Content-Type"))
	assert.Contains(t, audio.Header().Get("Content-Disposition"), "captcha.mp3")
	assert.True(t, bytes.HasPrefix(audio.Body.Bytes(), []byte("RIFF")))
}

func TestGenerateRegeneratesFromStoredCode(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/captcha/generate", "")
	require.Equal(t, http.StatusOK, w.Code)
	_, _, data := decodeEnvelope(t, w)
	id := data["captcha_id"].(string)

	// repeated fetches render fresh media for the same stored code
	a := env.do(t, http.MethodGet, "/api/captcha/"+id+"/image", "")
	b := env.do(t, http.MethodGet, "/api/captcha/"+id+"/image", "")
	require.Equal(t, http.StatusOK, a.Code)
	require.Equal(t, http.StatusOK, b.Code)
	assert.NotEqual(t, a.Body.Bytes(), b.Body.Bytes())
}

func TestGenerateRejectsInvalidAudioOptions(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/captcha/generate", `{"audio_customization":{"speed":2.0}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	code, _, _ := decodeEnvelope(t, w)
	assert.Equal(t, 40006, code)
}

func TestGenerateRejectsUnknownBackground(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/captcha/generate", `{"image_customization":{"background_id":"bg_missing"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	code, _, _ := decodeEnvelope(t, w)
	assert.Equal(t, 40005, code)
}

func TestUnknownChallengeID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/captcha/nope/image", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	code, _, _ := decodeEnvelope(t, w)
	assert.Equal(t, 40401, code)
}

func TestIssueTokenRejectsBadType(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/generate-token", `{"type":"video"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	code, _, _ := decodeEnvelope(t, w)
	assert.Equal(t, 40002, code)
}

func TestTokenMediaFormats(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/generate-token", `{"type":"image"}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, _, data := decodeEnvelope(t, w)
	token := data["token"].(string)
	require.NotEmpty(t, token)

	png := env.do(t, http.MethodGet, "/api/captcha/"+token+".png", "")
	require.Equal(t, http.StatusOK, png.Code)
	assert.Equal(t, "image/png", png.Header().Get("Content-Type"))

	svg := env.do(t, http.MethodGet, "/api/captcha/"+token+".svg", "")
	require.Equal(t, http.StatusOK, svg.Code)
	assert.Equal(t, captcha.SVGContentType, svg.Header().Get("Content-Type"))
	assert.Contains(t, svg.Body.String(), env.storedCode(t, token))

	bad := env.do(t, http.MethodGet, "/api/captcha/"+token+".gif", "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	code, _, _ := decodeEnvelope(t, bad)
	assert.Equal(t, 40003, code)

	mp3 := env.do(t, http.MethodGet, "/api/audio/"+token+".mp3", "")
	require.Equal(t, http.StatusOK, mp3.Code)
	assert.True(t, bytes.HasPrefix(mp3.Body.Bytes(), []byte("RIFF")))
}

func TestValidateSuccessConsumesToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/generate-token", `{"type":"image"}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, _, data := decodeEnvelope(t, w)
	token := data["token"].(string)
	answer := strings.ToLower(env.storedCode(t, token))

	ok := env.do(t, http.MethodPost, "/api/validate", fmt.Sprintf(`{"token":%q,"response":%q}`, token, answer))
	require.Equal(t, http.StatusOK, ok.Code)
	_, msg, vdata := decodeEnvelope(t, ok)
	assert.Equal(t, "captcha validated successfully", msg)
	assert.Equal(t, true, vdata["valid"])

	// a consumed token behaves like it never existed
	again := env.do(t, http.MethodPost, "/api/validate", fmt.Sprintf(`{"token":%q,"response":%q}`, token, answer))
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestValidateExhaustsAttempts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/generate-token", `{"type":"image"}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, _, data := decodeEnvelope(t, w)
	token := data["token"].(string)

	for _, remaining := range []float64{2, 1, 0} {
		fail := env.do(t, http.MethodPost, "/api/validate", fmt.Sprintf(`{"token":%q,"response":"WRONG!"}`, token))
		require.Equal(t, http.StatusOK, fail.Code)
		_, msg, vdata := decodeEnvelope(t, fail)
		assert.Equal(t, "invalid captcha response", msg)
		assert.Equal(t, false, vdata["valid"])
		assert.Equal(t, remaining, vdata["attempts_remaining"])
	}

	blocked := env.do(t, http.MethodPost, "/api/validate", fmt.Sprintf(`{"token":%q,"response":"WRONG!"}`, token))
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	code, _, _ := decodeEnvelope(t, blocked)
	assert.Equal(t, 42902, code)
}

func TestValidateRequiresTokenAndResponse(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{``, `{}`, `{"token":"t"}`, `{"response":"r"}`} {
		w := env.do(t, http.MethodPost, "/api/validate", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}
