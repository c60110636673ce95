package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"interview-coach/internal/cli"
)

func main() {
	// Загружаем переменные окружения, .env не обязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Ошибка загрузки .env файла: %v", err)
	}

	cli.Execute()
}
