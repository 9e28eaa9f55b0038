package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/minsu-cho/agorasim/params"
	"github.com/minsu-cho/agorasim/pkg/api"
	"github.com/minsu-cho/agorasim/pkg/econ/policy"
	"github.com/minsu-cho/agorasim/pkg/econ/sim"
	"github.com/minsu-cho/agorasim/pkg/util"
)

func main() {
	// Load config from .env file and environment variables; a YAML scenario
	// file overrides both when SCENARIO is set.
	cfg := params.LoadFromEnv("")
	if path := os.Getenv("SCENARIO"); path != "" {
		loaded, err := params.LoadFile(path)
		if err != nil {
			log.Fatalf("scenario: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/simd.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	days := uint64(365)
	if v := os.Getenv("SIM_DAYS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			days = n
		}
	}

	world, err := sim.NewWorld(cfg, logger)
	if err != nil {
		log.Fatalf("world: %v", err)
	}
	world.SetPolicies(policy.Defaults())
	sched := sim.NewScheduler(world)

	// Optional read-only observer API. The scheduler stays single-threaded;
	// the server only ever sees frames pushed between cycles.
	var observer *api.Server
	if addr := os.Getenv("API_ADDR"); addr != "" {
		observer = api.NewServer()
		go func() {
			if err := observer.Start(addr); err != nil {
				sugar.Errorw("api_server_stopped", "err", err)
			}
		}()
	}

	sugar.Infow("simulation_start",
		"seed", cfg.Seed,
		"regime", cfg.Bank.Regime,
		"days", days,
		"households", cfg.World.Households,
		"firms", cfg.World.Firms)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for d := uint64(0); d < days; d++ {
		select {
		case sig := <-stop:
			sugar.Infow("interrupted", "signal", sig.String(), "day", world.Day())
			logSummary(sugar, world)
			return
		default:
		}
		sched.RunDays(1)
		if observer != nil {
			observer.Push(api.SnapshotWorld(world))
		}
	}

	logSummary(sugar, world)
}

func logSummary(sugar *zap.SugaredLogger, world *sim.World) {
	snap := world.MacroSnapshot()
	sugar.Infow("simulation_done",
		"day", snap.Day,
		"phase", snap.Phase.String(),
		"gdp", snap.GDP,
		"cpi", snap.CPI,
		"inflation", snap.Inflation,
		"unemployment", snap.Unemployment,
		"sentiment", snap.Sentiment,
		"money_base", snap.MoneyBase,
		"deposits", snap.Deposits,
		"loans", snap.TotalLoans,
		"written_off", snap.WrittenOff,
		"loan_rate", snap.LoanRate,
		"active_firms", snap.ActiveFirms,
		"audit_findings", snap.Findings)
}
