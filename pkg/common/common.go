package common

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/bwmarrin/snowflake"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var snowflakeNode *snowflake.Node

func init() {
	var err error
	snowflakeNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

// UUIDint64 returns a new snowflake id
func UUIDint64() int64 {
	return snowflakeNode.Generate().Int64()
}

// UUID returns a new snowflake id string
func UUID() string {
	return snowflakeNode.Generate().String()
}

// GetSecretSalt reads the shared secret salt from the environment with a
// development fallback.
func GetSecretSalt() string {
	if v := os.Getenv("CITADEL_SECRET_SALT"); v != "" {
		return v
	}
	return "citadel-dev-salt"
}

// Sha256Hash returns the hex encoded sha256 of the value
func Sha256Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// FileExists checks if a path exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
