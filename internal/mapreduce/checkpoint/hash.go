package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
)

// CanonicalHash computes a stable hash over cp's contents, excluding the
// IntegrityHash field itself. encoding/json already sorts map keys and
// preserves struct field declaration order, which is sufficient for a
// canonical form here since Checkpoint never uses non-string map keys.
func CanonicalHash(cp model.Checkpoint) (string, error) {
	cp.IntegrityHash = ""
	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashWorkflowText hashes the workflow YAML's raw text, used to detect
// drift between the checkpoint and the file on disk at resume time.
func HashWorkflowText(text []byte) string {
	sum := sha256.Sum256(text)
	return hex.EncodeToString(sum[:])
}
