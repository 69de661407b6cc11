package storage

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// Checksum returns the hex BLAKE2b-256 digest of content.
func Checksum(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func verify(content []byte, want string) error {
	if want == "" {
		return nil
	}
	if got := Checksum(content); got != want {
		return fmt.Errorf("%w: checksum mismatch (got %s, want %s)", domain.ErrStorage, got, want)
	}
	return nil
}

// objectName derives the stored name "{documentID}_{base filename}".
func objectName(documentID, filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return documentID + "_" + name
}
