// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/blocksim/app/services/blocksim/handlers/v1/public"
	"github.com/ardanlabs/blocksim/foundation/blockchain/state"
	"github.com/ardanlabs/blocksim/foundation/blockchain/worker"
	"github.com/ardanlabs/blocksim/foundation/events"
	"github.com/ardanlabs/blocksim/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log    *zap.SugaredLogger
	State  *state.State
	Worker *worker.Worker
	Evts   *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:    cfg.Log,
		State:  cfg.State,
		Worker: cfg.Worker,
		WS:     websocket.Upgrader{},
		Evts:   cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)

	app.Handle(http.MethodGet, version, "/chain", pbl.Chain)
	app.Handle(http.MethodGet, version, "/chain/validate", pbl.ValidateChain)
	app.Handle(http.MethodPost, version, "/chain/blocks", pbl.AddBlock)
	app.Handle(http.MethodGet, version, "/chain/blocks/:index", pbl.Block)
	app.Handle(http.MethodPost, version, "/chain/blocks/:index/mine", pbl.MineBlock)
	app.Handle(http.MethodPut, version, "/chain/blocks/:index/data", pbl.EditBlockData)
	app.Handle(http.MethodPost, version, "/chain/replace", pbl.ReplaceChain)
	app.Handle(http.MethodGet, version, "/chain/difficulty", pbl.Difficulty)
	app.Handle(http.MethodPut, version, "/chain/difficulty", pbl.SetDifficulty)
	app.Handle(http.MethodPost, version, "/chain/reset", pbl.Reset)

	app.Handle(http.MethodGet, version, "/fork", pbl.Fork)
	app.Handle(http.MethodPut, version, "/fork/probability", pbl.SetForkProbability)
	app.Handle(http.MethodPost, version, "/fork/assignments", pbl.AssignMiner)
	app.Handle(http.MethodDelete, version, "/fork/assignments", pbl.ClearAssignments)
	app.Handle(http.MethodPost, version, "/fork/force", pbl.ForceFork)
	app.Handle(http.MethodDelete, version, "/fork/reorg", pbl.DismissReorg)

	app.Handle(http.MethodGet, version, "/mempool", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/mempool/:sig", pbl.TxStatus)
	app.Handle(http.MethodGet, version, "/tx/confirmed", pbl.Confirmed)
	app.Handle(http.MethodGet, version, "/tx/failed", pbl.Failed)
	app.Handle(http.MethodPost, version, "/tx/send", pbl.SendTransaction)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodPost, version, "/tx/:sig/cancel", pbl.CancelTransaction)
	app.Handle(http.MethodPost, version, "/tx/:sig/speedup", pbl.SpeedUpTransaction)

	app.Handle(http.MethodGet, version, "/wallets", pbl.Wallets)
	app.Handle(http.MethodGet, version, "/wallets/:name", pbl.Wallet)
	app.Handle(http.MethodPost, version, "/wallets", pbl.CreateWallet)

	app.Handle(http.MethodGet, version, "/scheduler", pbl.Scheduler)
	app.Handle(http.MethodPost, version, "/scheduler/start", pbl.StartScheduler)
	app.Handle(http.MethodPost, version, "/scheduler/stop", pbl.StopScheduler)
	app.Handle(http.MethodPut, version, "/scheduler/multiplier", pbl.SetMultiplier)
	app.Handle(http.MethodPost, version, "/scheduler/spike", pbl.MempoolSpike)
	app.Handle(http.MethodPost, version, "/scheduler/network", pbl.NetworkEvent)
	app.Handle(http.MethodPost, version, "/scheduler/fastforward", pbl.FastForward)

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/events/recent", pbl.RecentEvents)
}
