// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"cogspine/autonomy"
	"cogspine/autonomy/trust"
	"cogspine/economy"
	"cogspine/ledger"
	"cogspine/orchestrator"
	"cogspine/shared/logger"
	"cogspine/tools"
	"cogspine/tools/hippocampus"
)

func main() {
	log := logger.New("orchestrator-main")
	cfg := orchestrator.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	led, closeLedger, err := openLedger(ctx, cfg.DBURL)
	if err != nil {
		log.Error("", "", "failed to open ledger", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer closeLedger()

	econPersist := economy.NewFilePersister(getEnv("ECONOMY_STATE_PATH", ""))
	econ, err := economy.New(econPersist)
	if err != nil {
		log.Error("", "", "failed to initialize economy", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	audit, err := orchestrator.NewAuditLogger(getEnv("ORCHESTRATOR_AUDIT_LOG_PATH", "data/audit.log"))
	if err != nil {
		log.Error("", "", "failed to open audit log", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer audit.Close()

	registry := orchestrator.NewRegistry()
	registry.Register(tools.NewEcho())
	registry.Register(tools.NewFlaky())
	registry.Register(tools.NewMaintainer())
	registry.Register(tools.NewEvolver())
	registry.Register(tools.NewMemorySearch())

	orch := orchestrator.New(cfg, registry, econ, led, audit)

	if redisAddr := os.Getenv("ORCHESTRATOR_REDIS_ADDR"); redisAddr != "" {
		cache, err := orchestrator.NewRedisIdempotencyCache(redisAddr, os.Getenv("ORCHESTRATOR_REDIS_PASSWORD"), 0, cfg.IdempotencyTTL)
		if err != nil {
			log.Error("", "", "failed to connect to redis idempotency cache", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		orch.SetIdempotencyCache(cache)
	}

	go orch.StartWorker(ctx)
	go runEconomyTicker(ctx, econ)

	trustModel, err := trust.NewModel(getEnv("AUTONOMY_TRUST_PATH", ""))
	if err != nil {
		log.Error("", "", "failed to load trust model", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	explain := autonomy.NewExplainStore(getEnv("AUTONOMY_EXPLAIN_PATH", ""))
	memoryFixture := hippocampus.NewMemoryFixture(24*time.Hour, 0.2)
	controller := autonomy.NewController(orch, econ, led, trustModel, memoryFixture, explain, getEnv("AUTONOMY_INTENT_STACK_PATH", ""))

	cycleSeconds := 60
	if v, err := strconv.Atoi(getEnv("AUTONOMY_CYCLE_SECONDS", "60")); err == nil {
		cycleSeconds = v
	}
	go controller.Run(ctx, time.Duration(cycleSeconds)*time.Second)

	tokens, err := orchestrator.ParseTokenStore(cfg.TokensJSON)
	if err != nil {
		log.Error("", "", "failed to parse bearer tokens", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	tokens.SetJWTSecret(cfg.JWTSecret)

	server := orchestrator.NewServer(orch, econ, controller, tokens, controller)

	if cfg.RequireTLS && (cfg.TLSCertFile == "" || cfg.TLSKeyFile == "") {
		log.Error("", "", "ORCHESTRATOR_REQUIRE_TLS is set but ORCHESTRATOR_TLS_CERT_FILE/ORCHESTRATOR_TLS_KEY_FILE are not both configured", nil)
		os.Exit(1)
	}

	addr := ":" + getEnv("ORCHESTRATOR_PORT", "8080")
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	go func() {
		var err error
		if cfg.RequireTLS {
			log.Info("", "", "orchestrator listening (tls)", map[string]interface{}{"addr": addr})
			err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			log.Info("", "", "orchestrator listening", map[string]interface{}{"addr": addr})
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Error("", "", "http server exited", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	log.Info("", "", "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	server.Shutdown(shutdownCtx)
}

// runEconomyTicker drives the budget's regen tick and refreshes the
// Prometheus gauges every 30 seconds until ctx is cancelled.
func runEconomyTicker(ctx context.Context, econ *economy.Economy) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			econ.Tick()
			econ.ReportMetrics()
		}
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openLedger returns the in-memory ledger (and a no-op closer) when
// ORCHESTRATOR_DB_URL is empty — the same dev-mode-without-a-database
// affordance run.go's LLM config offers. Any other value opens the
// SQL-backed ledger: a mysql:// URL uses the MySQL driver, and every
// other URL is opened with the postgres driver.
func openLedger(ctx context.Context, dbURL string) (ledger.Ledger, func(), error) {
	if dbURL == "" {
		return ledger.NewInMemoryLedger(), func() {}, nil
	}

	var driverName string
	var dialect ledger.Dialect
	switch {
	case strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://"):
		driverName, dialect = "postgres", ledger.DialectPostgres
	case strings.HasPrefix(dbURL, "mysql://"):
		driverName, dialect = "mysql", ledger.DialectMySQL
		dbURL = strings.TrimPrefix(dbURL, "mysql://")
	default:
		driverName, dialect = "postgres", ledger.DialectPostgres
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	sqlLedger, err := ledger.NewSQLLedger(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return sqlLedger, func() { db.Close() }, nil
}
