package http

import (
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/repository"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/service"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
)

type Handler struct {
	accountService *service.AccountService
	store          repository.Store
	log            *zap.Logger
}

func New(store repository.Store, log *zap.Logger) *Handler {
	return &Handler{
		accountService: service.NewAccountService(store, log),
		store:          store,
		log:            logging.OrNop(log),
	}
}
