package service

import (
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/batchsettle/internal/auth"
	"github.com/mmynk/batchsettle/internal/metrics"
	"github.com/mmynk/batchsettle/internal/middleware"
	"github.com/mmynk/batchsettle/internal/settlement"
	"github.com/mmynk/batchsettle/pkg/api"
)

// PublicProcedures can be called without a token.
var PublicProcedures = []string{
	api.AdminServiceGetLimitsProcedure,
	api.LedgerServiceBalanceOfProcedure,
	api.LedgerServiceListEntriesProcedure,
	api.BatchServiceIsCommittedProcedure,
	api.BatchServiceGetBatchProcedure,
	api.BatchServiceGetPayoutProcedure,
	api.BatchServiceListEventsProcedure,
}

// Register mounts the three settlement services on mux behind the logging
// and authentication interceptors.
func Register(mux *http.ServeMux, engine *settlement.Engine, roles RoleManager, jwtManager *auth.JWTManager, m *metrics.Metrics) {
	// Authentication runs first so the logging interceptor sees the caller.
	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(jwtManager, PublicProcedures...),
		middleware.LoggingInterceptor(m),
	)

	mux.Handle(api.NewAdminServiceHandler(NewAdminService(engine, roles), interceptors))
	mux.Handle(api.NewLedgerServiceHandler(NewLedgerService(engine), interceptors))
	mux.Handle(api.NewBatchServiceHandler(NewBatchService(engine), interceptors))
}
