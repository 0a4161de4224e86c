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

package autonomy

import (
	"sync"
	"time"
)

// Stack is the autonomy controller's intent queue. It belongs solely to
// the controller; the only other writer is the adapter enqueueing a
// new intent, guarded by the same mutex.
type Stack struct {
	mu      sync.Mutex
	intents []Intent
}

// NewStack builds an empty intent stack.
func NewStack() *Stack { return &Stack{} }

// Add pushes an intent onto the stack.
func (s *Stack) Add(i Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, i)
}

// Len reports how many intents are currently on the stack.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.intents)
}

// All returns a copy of the current intents.
func (s *Stack) All() []Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Intent, len(s.intents))
	copy(out, s.intents)
	return out
}

// Top returns the highest-priority intent, if any.
func (s *Stack) Top() (Intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topLocked()
}

func (s *Stack) topLocked() (Intent, bool) {
	if len(s.intents) == 0 {
		return Intent{}, false
	}
	best := 0
	for i := 1; i < len(s.intents); i++ {
		if s.intents[i].Priority > s.intents[best].Priority {
			best = i
		}
	}
	return s.intents[best], true
}

// Remove deletes the intent with the given ID.
func (s *Stack) Remove(intentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.intents {
		if it.IntentID == intentID {
			s.intents = append(s.intents[:i], s.intents[i+1:]...)
			return
		}
	}
}

// ClearType removes every intent of the given type.
func (s *Stack) ClearType(kind IntentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.intents[:0]
	for _, it := range s.intents {
		if it.IntentType != kind {
			kept = append(kept, it)
		}
	}
	s.intents = kept
}

// HasType reports whether an intent of the given type is present.
func (s *Stack) HasType(kind IntentType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.intents {
		if it.IntentType == kind {
			return true
		}
	}
	return false
}

// Decay applies Intent.Decay to every intent for the given elapsed
// duration, then prunes anything that fell below PruneThreshold.
func (s *Stack) Decay(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.intents[:0]
	for i := range s.intents {
		s.intents[i].Decay(elapsed)
		if s.intents[i].Priority >= PruneThreshold {
			kept = append(kept, s.intents[i])
		}
	}
	s.intents = kept
}

// filterInPlace removes every intent for which keep returns false,
// returning the removed ones. Used by the trust and canon gates, which
// mutate the stack in place per spec.md §4.3.
func (s *Stack) filterInPlace(keep func(Intent) bool) []Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []Intent
	kept := s.intents[:0]
	for _, it := range s.intents {
		if keep(it) {
			kept = append(kept, it)
		} else {
			removed = append(removed, it)
		}
	}
	s.intents = kept
	return removed
}
