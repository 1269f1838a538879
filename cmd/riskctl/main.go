package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/glycorisk/pkg/zerolog_config"
)

func main() {
	_ = godotenv.Load(".env")

	zerolog_config.SetAppPrefix("riskctl")
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = zerolog_config.NewLogger(os.Stderr, "", "logs")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
