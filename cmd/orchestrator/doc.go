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

/*
Command orchestrator runs the cognitive orchestrator: the tool
invocation spine, the economy, the autonomy controller, and the
execution ledger, all behind one HTTP surface.

# Usage

	orchestrator [flags]

# Environment Variables

	ORCHESTRATOR_KILL_SWITCH        - "true" refuses every call
	ORCHESTRATOR_TOOL_ALLOWLIST     - comma-separated tool names
	ORCHESTRATOR_TOOL_DENYLIST      - comma-separated tool names
	ORCHESTRATOR_DOMAIN_ALLOWLIST   - comma-separated domains
	ORCHESTRATOR_DOMAIN_DENYLIST    - comma-separated domains
	ORCHESTRATOR_MAX_RISK           - low|medium|high (default high)
	ORCHESTRATOR_TOOL_BUDGETS       - JSON object, tool name -> ceiling
	ORCHESTRATOR_TENANT_BUDGETS     - JSON object, tenant -> ceiling
	ORCHESTRATOR_DEADLINE_MS        - default per-call deadline
	ORCHESTRATOR_IDEMPOTENCY_TTL    - seconds
	ORCHESTRATOR_QUEUE_MAX_LEN      - async queue capacity
	ORCHESTRATOR_TOKENS_JSON        - bearer token -> scopes map
	ORCHESTRATOR_JWT_SECRET         - HMAC secret for JWT bearer tokens (scopes claim)
	ORCHESTRATOR_POLICY_FILE        - optional YAML file for the allow/deny lists and max risk
	ORCHESTRATOR_DB_URL             - postgres://... or mysql://...; unset uses the in-memory ledger
	ORCHESTRATOR_REDIS_ADDR         - when set, idempotency cache lives in Redis instead of memory
	ORCHESTRATOR_AUDIT_LOG_PATH     - default "data/audit.log"
	ORCHESTRATOR_PORT               - HTTP listen port (default 8080)
	ORCHESTRATOR_REQUIRE_TLS        - "true" serves over TLS and refuses to start without a cert/key pair
	ORCHESTRATOR_TLS_CERT_FILE      - PEM certificate path, required when ORCHESTRATOR_REQUIRE_TLS is set
	ORCHESTRATOR_TLS_KEY_FILE       - PEM private key path, required when ORCHESTRATOR_REQUIRE_TLS is set
	AUTONOMY_CYCLE_SECONDS          - autonomy loop period (default 60)
	AUTONOMY_EXPLAIN_PATH           - default "data/explainability.json"
	AUTONOMY_TRUST_PATH             - default "data/social_trust.json"
	AUTONOMY_INTENT_STACK_PATH      - default "data/intent_stack.json"
	ECONOMY_STATE_PATH              - default "data/economy.json"
*/
package main
