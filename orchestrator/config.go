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

package orchestrator

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the environment-driven policy and wiring configuration for
// an Orchestrator, read once at startup the way run.go's LoadLLMConfig
// reads its environment hierarchy.
type Config struct {
	KillSwitch bool

	ToolAllowlist   []string
	ToolDenylist    []string
	DomainAllowlist []string
	DomainDenylist  []string
	MaxRisk         RiskLevel

	ToolBudgets   map[string]float64
	TenantBudgets map[string]float64

	DeadlineMS     int64
	IdempotencyTTL time.Duration
	RequireTLS     bool
	TLSCertFile    string
	TLSKeyFile     string

	TokensJSON string
	JWTSecret  string

	DBURL string

	QueueMaxLen int
}

// policyFile is the optional YAML shape ORCHESTRATOR_POLICY_FILE names,
// letting an operator manage the allow/deny lists and max risk as a
// checked-in file instead of (or alongside) the *_ALLOWLIST/*_DENYLIST
// env vars — env vars still win where both are set, since LoadConfig
// applies the file first and the env-derived fields afterward only
// overwrite what was actually set.
type policyFile struct {
	ToolAllowlist   []string `yaml:"tool_allowlist"`
	ToolDenylist    []string `yaml:"tool_denylist"`
	DomainAllowlist []string `yaml:"domain_allowlist"`
	DomainDenylist  []string `yaml:"domain_denylist"`
	MaxRisk         string   `yaml:"max_risk"`
}

func loadPolicyFile(path string) (policyFile, error) {
	var pf policyFile
	b, err := os.ReadFile(path)
	if err != nil {
		return pf, err
	}
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return pf, err
	}
	return pf, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadConfig builds a Config from the environment variables spec.md §6
// names: ORCHESTRATOR_KILL_SWITCH, ORCHESTRATOR_TOOL_ALLOWLIST/DENYLIST,
// ORCHESTRATOR_DOMAIN_ALLOWLIST/DENYLIST, ORCHESTRATOR_MAX_RISK,
// ORCHESTRATOR_TOOL_BUDGETS, ORCHESTRATOR_TENANT_BUDGETS,
// ORCHESTRATOR_DEADLINE_MS, ORCHESTRATOR_IDEMPOTENCY_TTL,
// ORCHESTRATOR_REQUIRE_TLS, ORCHESTRATOR_TLS_CERT_FILE,
// ORCHESTRATOR_TLS_KEY_FILE, ORCHESTRATOR_TOKENS_JSON, ORCHESTRATOR_DB_URL.
func LoadConfig() Config {
	cfg := Config{
		MaxRisk:    RiskHigh,
		TokensJSON: os.Getenv("ORCHESTRATOR_TOKENS_JSON"),
		JWTSecret:  os.Getenv("ORCHESTRATOR_JWT_SECRET"),
		DBURL:      os.Getenv("ORCHESTRATOR_DB_URL"),
	}

	if path := os.Getenv("ORCHESTRATOR_POLICY_FILE"); path != "" {
		if pf, err := loadPolicyFile(path); err == nil {
			cfg.ToolAllowlist = pf.ToolAllowlist
			cfg.ToolDenylist = pf.ToolDenylist
			cfg.DomainAllowlist = pf.DomainAllowlist
			cfg.DomainDenylist = pf.DomainDenylist
			if pf.MaxRisk != "" {
				cfg.MaxRisk = RiskLevel(pf.MaxRisk)
			}
		}
	}

	cfg.KillSwitch = getEnv("ORCHESTRATOR_KILL_SWITCH", "false") == "true"
	cfg.RequireTLS = getEnv("ORCHESTRATOR_REQUIRE_TLS", "false") == "true"
	cfg.TLSCertFile = os.Getenv("ORCHESTRATOR_TLS_CERT_FILE")
	cfg.TLSKeyFile = os.Getenv("ORCHESTRATOR_TLS_KEY_FILE")
	if v := os.Getenv("ORCHESTRATOR_TOOL_ALLOWLIST"); v != "" {
		cfg.ToolAllowlist = splitList(v)
	}
	if v := os.Getenv("ORCHESTRATOR_TOOL_DENYLIST"); v != "" {
		cfg.ToolDenylist = splitList(v)
	}
	if v := os.Getenv("ORCHESTRATOR_DOMAIN_ALLOWLIST"); v != "" {
		cfg.DomainAllowlist = splitList(v)
	}
	if v := os.Getenv("ORCHESTRATOR_DOMAIN_DENYLIST"); v != "" {
		cfg.DomainDenylist = splitList(v)
	}
	if v := os.Getenv("ORCHESTRATOR_MAX_RISK"); v != "" {
		cfg.MaxRisk = RiskLevel(v)
	}

	if ms, err := strconv.ParseInt(getEnv("ORCHESTRATOR_DEADLINE_MS", "30000"), 10, 64); err == nil {
		cfg.DeadlineMS = ms
	} else {
		cfg.DeadlineMS = 30000
	}

	if secs, err := strconv.Atoi(getEnv("ORCHESTRATOR_IDEMPOTENCY_TTL", "3600")); err == nil {
		cfg.IdempotencyTTL = time.Duration(secs) * time.Second
	} else {
		cfg.IdempotencyTTL = DefaultIdempotencyTTL
	}

	if q, err := strconv.Atoi(getEnv("ORCHESTRATOR_QUEUE_MAX_LEN", "1000")); err == nil {
		cfg.QueueMaxLen = q
	} else {
		cfg.QueueMaxLen = 1000
	}

	cfg.ToolBudgets = parseBudgetMap(os.Getenv("ORCHESTRATOR_TOOL_BUDGETS"))
	cfg.TenantBudgets = parseBudgetMap(os.Getenv("ORCHESTRATOR_TENANT_BUDGETS"))

	return cfg
}

func parseBudgetMap(raw string) map[string]float64 {
	if raw == "" {
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
