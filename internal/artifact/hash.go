package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"layerforge/internal/fileutil"
)

// HashPrefix starts the staleness trailer embedded in generated artifacts.
const HashPrefix = "# HASH: "

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString returns the hex SHA-256 of s.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashFile returns the hex SHA-256 of the file content and whether it exists.
func HashFile(path string) (string, bool, error) {
	data, ok, err := fileutil.ReadIfExists(path)
	if err != nil || !ok {
		return "", ok, err
	}
	return HashBytes(data), true, nil
}

// AppendHashTrailer replaces any existing trailer with "\n# HASH: <sha>\n".
func AppendHashTrailer(content, sha string) string {
	body := strings.TrimRight(StripHashTrailer(content), "\n")
	return body + "\n" + HashPrefix + sha + "\n"
}

// StripHashTrailer removes a trailing HASH line if present.
func StripHashTrailer(content string) string {
	trimmed := strings.TrimRight(content, "\n\r\t ")
	idx := strings.LastIndex(trimmed, "\n")
	last := trimmed[idx+1:]
	if !strings.HasPrefix(strings.TrimSpace(last), strings.TrimSpace(HashPrefix)) {
		return content
	}
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

// ReadHashTrailer returns the sha recorded in the trailing HASH line.
func ReadHashTrailer(content string) (string, bool) {
	trimmed := strings.TrimRight(content, "\n\r\t ")
	last := strings.TrimSpace(trimmed[strings.LastIndex(trimmed, "\n")+1:])
	if !strings.HasPrefix(last, strings.TrimSpace(HashPrefix)) {
		return "", false
	}
	sha := strings.TrimSpace(strings.TrimPrefix(last, strings.TrimSpace(HashPrefix)))
	if sha == "" {
		return "", false
	}
	return sha, true
}

// WriteTarget writes content with a HASH trailer bound to sourceHash.
func WriteTarget(path, content, sourceHash string) error {
	if err := fileutil.WriteFileAtomic(path, []byte(AppendHashTrailer(content, sourceHash)), 0o644); err != nil {
		return fmt.Errorf("write target %s: %w", path, err)
	}
	return nil
}

// ReadText returns the file content as a string, "" when missing.
func ReadText(path string) (string, bool, error) {
	data, ok, err := fileutil.ReadIfExists(path)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), ok, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
