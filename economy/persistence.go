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

package economy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister is the JSON-file-backed Persister: a full-state rewrite
// on every mutation, written via a temp-file-then-rename so a crash
// mid-write never leaves a truncated economy.json behind.
type FilePersister struct {
	path string
}

// NewFilePersister targets path, defaulting to "data/economy.json" the
// way ECONOMY_STATE_PATH does when unset.
func NewFilePersister(path string) *FilePersister {
	if path == "" {
		path = "data/economy.json"
	}
	return &FilePersister{path: path}
}

// Load reads the state file, returning ok=false if it does not yet exist.
func (p *FilePersister) Load() (State, bool, error) {
	b, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return State{}, false, fmt.Errorf("economy: corrupt state file %s: %w", p.path, err)
	}
	if s.SchemaVersion != currentSchemaVersion {
		return State{}, false, fmt.Errorf("economy: unsupported schema_version %d in %s", s.SchemaVersion, p.path)
	}
	return s, true, nil
}

// Save rewrites the state file atomically.
func (p *FilePersister) Save(s State) error {
	if s.SchemaVersion == 0 {
		s.SchemaVersion = currentSchemaVersion
	}
	dir := filepath.Dir(p.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}
