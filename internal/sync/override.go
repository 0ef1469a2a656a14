package sync

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/speckit-sync/internal/config"
)

const (
	// headerLines is how many leading lines are searched for header markers.
	headerLines = 5
	// headerBytes caps how much of a file the header scan reads.
	headerBytes = 8 << 10
)

// isLocallyOverridden reports whether the working-tree file at dst opted
// out of syncing, either through a marker file next to it or a header
// marker near its top. A file that does not exist cannot be protected.
func isLocallyOverridden(dst string, lo config.LocalOverrides) bool {
	if !lo.Enabled {
		return false
	}

	info, err := os.Lstat(dst)
	if err != nil {
		return false
	}

	if _, err := os.Lstat(filepath.Join(filepath.Dir(dst), lo.Marker())); err == nil {
		return true
	}

	if len(lo.HeaderMarkers) == 0 || !info.Mode().IsRegular() {
		return false
	}
	return hasHeaderMarker(dst, lo.HeaderMarkers)
}

func hasHeaderMarker(path string, markers []string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() {
		_ = f.Close()
	}()

	var head strings.Builder
	r := bufio.NewReader(io.LimitReader(f, headerBytes))
	for i := 0; i < headerLines; i++ {
		line, err := r.ReadString('\n')
		head.WriteString(line)
		if err != nil {
			break
		}
	}

	content := head.String()
	for _, m := range markers {
		if m != "" && strings.Contains(content, m) {
			return true
		}
	}
	return false
}
