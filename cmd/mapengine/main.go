package main

import (
	"log"

	"github.com/bauervision/eidomap/internal/app"
	"github.com/bauervision/eidomap/pkg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	app.Run(cfg)
}
