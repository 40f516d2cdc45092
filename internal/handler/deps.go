package handler

import (
	"courier/internal/app/chat"
	"courier/internal/configs"
)

type AppDeps struct {
	Hub    *chat.Hub
	Config *configs.AppConfig
}
