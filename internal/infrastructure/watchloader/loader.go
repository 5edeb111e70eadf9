package watchloader

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/domain/entity"
)

const defaultWatchlistPath = "data/watchlist.txt"

// WatchlistFileLoader implements port.WatchlistProvider by reading watched
// connections from a text file. One connection per line: `<chainID> <address>`.
// Blank lines and `#` comments are skipped.
type WatchlistFileLoader struct {
	filePath   string
	loggerInfo func(msg string, args ...any)
}

// NewWatchlistFileLoader creates a new WatchlistFileLoader. An empty path
// falls back to the default location.
func NewWatchlistFileLoader(filePath string, loggerInfo func(msg string, args ...any)) port.WatchlistProvider {
	if filePath == "" {
		filePath = defaultWatchlistPath
	}
	return &WatchlistFileLoader{
		filePath:   filePath,
		loggerInfo: loggerInfo,
	}
}

// GetWatchedConnections reads and parses the watchlist file. A missing file
// is not an error: an empty watchlist just means nothing is pre-warmed.
func (l *WatchlistFileLoader) GetWatchedConnections() ([]entity.ConnectionContext, error) {
	file, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			if l.loggerInfo != nil {
				l.loggerInfo("No watchlist file found, starting with empty watchlist", "path", l.filePath)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open watchlist file %s: %w", l.filePath, err)
	}
	defer file.Close()

	var connections []entity.ConnectionContext
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			if l.loggerInfo != nil {
				l.loggerInfo("Skipping malformed watchlist line", "file", l.filePath, "line_number", lineNum, "line", line)
			}
			continue
		}

		chainID, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			if l.loggerInfo != nil {
				l.loggerInfo("Skipping watchlist line with invalid chain id", "file", l.filePath, "line_number", lineNum, "chainId", fields[0])
			}
			continue
		}
		address := fields[1]
		if !(strings.HasPrefix(address, "0x") && len(address) == 42) {
			if l.loggerInfo != nil {
				l.loggerInfo("Skipping invalid address format", "file", l.filePath, "line_number", lineNum, "address", address)
			}
			continue
		}

		connections = append(connections, entity.ConnectionContext{Address: address, ChainID: chainID})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning watchlist file %s: %w", l.filePath, err)
	}

	if l.loggerInfo != nil {
		l.loggerInfo("Watchlist loaded successfully", "count", len(connections), "path", l.filePath)
	}
	return connections, nil
}
