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
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisIdempotencyCache backs the idempotency cache with Redis so that
// multiple orchestrator instances behind a load balancer share one
// idempotency index instead of each holding its own in-process map.
// Construction mirrors the connection-pool sizing the platform's Redis
// connector uses: a short dial/read/write timeout and a bounded pool,
// since this cache sits on the hot invocation path.
type RedisIdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisIdempotencyCache dials addr and verifies connectivity with a
// PING before returning, so a misconfigured cache fails fast at startup
// rather than on the first request.
func NewRedisIdempotencyCache(addr, password string, db int, ttl time.Duration) (*RedisIdempotencyCache, error) {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     50,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisIdempotencyCache{client: client, ttl: ttl, prefix: "orchestrator:idempotency:"}, nil
}

// NewRedisIdempotencyCacheWithClient wraps an already-constructed client,
// used by tests against miniredis.
func NewRedisIdempotencyCacheWithClient(client *redis.Client, ttl time.Duration) *RedisIdempotencyCache {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisIdempotencyCache{client: client, ttl: ttl, prefix: "orchestrator:idempotency:"}
}

// Get returns the cached result for key, relying on Redis's own TTL
// expiry (set at Put time) rather than re-checking age client-side.
func (c *RedisIdempotencyCache) Get(key string) (Result, bool) {
	if key == "" {
		return Result{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Result{}, false
	}
	return result, true
}

// Put stores result under key with NX semantics: only the first writer
// for a key succeeds, matching the in-process cache's "first to cache
// wins" rule even across multiple orchestrator instances.
func (c *RedisIdempotencyCache) Put(key string, result Result) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.client.SetNX(ctx, c.prefix+key, raw, c.ttl)
}
