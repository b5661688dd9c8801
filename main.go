package main

import (
	"github.com/edgekit/captchad/auth"
	"github.com/edgekit/captchad/captcha"
	"github.com/edgekit/captchad/config"
	"github.com/edgekit/captchad/routes"
	"github.com/edgekit/captchad/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	fonts := captcha.NewFontRegistry()
	if cfg.FontsDir != "" {
		if err := fonts.LoadDir(cfg.FontsDir); err != nil {
			utils.Sugar.Warnf("load fonts from %s: %v", cfg.FontsDir, err)
		}
	}

	synth := captcha.NewSynthesizer(
		&captcha.ExecEngine{Command: cfg.TTSCommand, Voice: cfg.TTSVoice, TempDir: cfg.TempDir},
		&captcha.FFmpegEncoder{Path: cfg.FFmpegPath, TempDir: cfg.TempDir},
	)
	gen := captcha.NewGenerator(captcha.NewRenderer(fonts), synth)

	cipher, err := auth.NewCipher(cfg.CredentialSecret)
	if err != nil {
		utils.Sugar.Fatalf("init credential cipher: %v", err)
	}
	keys, err := auth.NewKeyStore(cipher, cfg.APIKeys)
	if err != nil {
		utils.Sugar.Fatalf("init credential store: %v", err)
	}
	if keys.Len() == 0 {
		utils.Sugar.Warn("no API keys configured; privileged endpoints will reject all requests")
	}

	r, err := routes.SetupRouter(gen, keys, utils.GetRedis())
	if err != nil {
		utils.Sugar.Fatalf("setup router: %v", err)
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
