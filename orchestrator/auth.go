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
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the set of scopes a bearer token carries.
type Principal struct {
	Scopes []string `json:"scopes"`
}

// TokenStore maps bearer tokens to principals, parsed once at startup
// from ORCHESTRATOR_TOKENS_JSON — a JSON object of
// {"token": {"scopes": ["..."]}}. When jwtSecret is set, a bearer token
// that isn't in the static table is also tried as an HMAC-signed JWT
// carrying a "scopes" claim, so a deployment can mix a small set of
// long-lived static tokens with short-lived issued ones.
type TokenStore struct {
	tokens    map[string]Principal
	jwtSecret []byte
}

// ParseTokenStore parses raw (the ORCHESTRATOR_TOKENS_JSON contents).
// An empty raw yields an empty store under which every request is
// unauthorized unless a JWT secret is also configured via
// SetJWTSecret.
func ParseTokenStore(raw string) (*TokenStore, error) {
	store := &TokenStore{tokens: make(map[string]Principal)}
	if raw == "" {
		return store, nil
	}
	if err := json.Unmarshal([]byte(raw), &store.tokens); err != nil {
		return nil, fmt.Errorf("orchestrator: invalid ORCHESTRATOR_TOKENS_JSON: %w", err)
	}
	return store, nil
}

// SetJWTSecret enables JWT bearer-token authentication alongside the
// static token table, keyed by ORCHESTRATOR_JWT_SECRET.
func (s *TokenStore) SetJWTSecret(secret string) {
	if secret == "" {
		s.jwtSecret = nil
		return
	}
	s.jwtSecret = []byte(secret)
}

type jwtClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Authenticate looks up token in the static table first, then — if a
// JWT secret is configured — tries it as an HMAC-signed JWT carrying a
// "scopes" claim.
func (s *TokenStore) Authenticate(token string) (Principal, bool) {
	if p, ok := s.tokens[token]; ok {
		return p, true
	}
	if len(s.jwtSecret) == 0 {
		return Principal{}, false
	}
	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("orchestrator: unexpected JWT signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, false
	}
	return Principal{Scopes: claims.Scopes}, true
}

// HasScope reports whether p is authorized for required, per spec.md §6:
// "*" and "orchestrator:admin" grant everything; otherwise required must
// match exactly, or its domain must match a "{domain}:*" wildcard scope.
func (p Principal) HasScope(required string) bool {
	for _, s := range p.Scopes {
		if s == "*" || s == "orchestrator:admin" {
			return true
		}
		if s == required {
			return true
		}
		if strings.HasSuffix(s, ":*") {
			domain := strings.TrimSuffix(s, ":*")
			if strings.HasPrefix(required, domain+":") {
				return true
			}
		}
	}
	return false
}

// RequiredScope builds the "{domain}:{action}" scope an envelope requires.
func RequiredScope(domain, action string) string {
	return domain + ":" + action
}
