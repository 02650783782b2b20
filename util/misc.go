package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// JsonHash fingerprints any JSON-serializable value, used to tag a run's
// hyperparameter set.
func JsonHash(s interface{}) string {
	bs, _ := json.Marshal(s)
	hash := sha256.Sum256(bs)
	return hex.EncodeToString(hash[:])
}

func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
