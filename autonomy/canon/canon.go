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

// Package canon holds the inviolable rules no intent may ever satisfy,
// irrespective of source or trust.
package canon

import "strings"

// violations is the closed set of keyword patterns that, appearing
// anywhere in an intent's description or context.action, make it a
// canon violation.
var violations = []string{
	"delete_all",
	"self_destruct",
	"wipe_memory",
	"hack_economy",
	"set_budget_infinite",
	"set_budget_negative",
	"override_safety",
}

// Violates reports whether description or action matches any inviolable
// pattern, or contains a budget-manipulation phrase ("infinite" or
// "unlimited" combined with "budget").
func Violates(description, action string) (bool, string) {
	haystack := strings.ToLower(description + " " + action)
	for _, v := range violations {
		if strings.Contains(haystack, v) {
			return true, v
		}
	}
	if strings.Contains(haystack, "budget") {
		if strings.Contains(haystack, "infinite") {
			return true, "budget+infinite"
		}
		if strings.Contains(haystack, "unlimited") {
			return true, "budget+unlimited"
		}
	}
	return false, ""
}
