package storage

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"pixelfetch/internal/shared/logger"
	"pixelfetch/proxypool/model"
)

const (
	delimiter = "|"
	numFields = 6 // URL|Source|Status|FailureCount|LastUsed|LastChecked
)

// Storage persists pool entries between runs.
type Storage interface {
	Load() ([]*model.Proxy, error)
	Save(proxies []*model.Proxy) error
}

// FileStorage implements Storage with a plain text file, one proxy
// per line.
type FileStorage struct {
	filePath string
	mu       sync.RWMutex
}

// NewFileStorage creates a new FileStorage instance.
func NewFileStorage(filePath string) *FileStorage {
	return &FileStorage{
		filePath: filePath,
	}
}

// Load reads the proxy data file. A missing file yields an empty list.
func (fs *FileStorage) Load() ([]*model.Proxy, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l := logger.WithComponent("ProxyPool/Storage")

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			l.Info().Str("path", fs.filePath).Msg("Proxy data file not found, starting with an empty pool.")
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var proxies []*model.Proxy
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, delimiter)
		if len(fields) != numFields {
			l.Warn().Int("line", lineNum).Int("expected", numFields).Int("got", len(fields)).Msg("Skipping malformed line in proxy file.")
			continue
		}

		p, err := parseProxy(fields)
		if err != nil {
			l.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse proxy from line, skipping.")
			continue
		}
		proxies = append(proxies, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	l.Info().Int("count", len(proxies)).Msg("Successfully loaded proxies from file.")
	return proxies, nil
}

// Save persists the entries, sorted by URL for stable diffs.
func (fs *FileStorage) Save(proxies []*model.Proxy) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	l := logger.WithComponent("ProxyPool/Storage")

	sorted := make([]*model.Proxy, len(proxies))
	copy(sorted, proxies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].URL < sorted[j].URL
	})

	var sb strings.Builder
	for _, p := range sorted {
		sb.WriteString(formatProxy(p))
		sb.WriteString("\n")
	}

	if err := os.WriteFile(fs.filePath, []byte(sb.String()), 0644); err != nil {
		return err
	}

	l.Info().Int("count", len(sorted)).Msg("Successfully saved proxies to file.")
	return nil
}

func formatProxy(p *model.Proxy) string {
	return strings.Join([]string{
		p.URL,
		p.Source,
		string(p.Status),
		strconv.Itoa(p.FailureCount),
		strconv.FormatInt(p.LastUsed.Unix(), 10),
		strconv.FormatInt(p.LastChecked.Unix(), 10),
	}, delimiter)
}

func parseProxy(fields []string) (*model.Proxy, error) {
	failureCount, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("invalid failure count: %w", err)
	}
	lastUsed, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid last-used timestamp: %w", err)
	}
	lastChecked, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid last-checked timestamp: %w", err)
	}

	status := model.Status(fields[2])
	switch status {
	case model.StatusUntested, model.StatusHealthy, model.StatusFailed:
	default:
		return nil, fmt.Errorf("unknown status %q", fields[2])
	}

	return &model.Proxy{
		URL:          fields[0],
		Source:       fields[1],
		Status:       status,
		FailureCount: failureCount,
		LastUsed:     time.Unix(lastUsed, 0),
		LastChecked:  time.Unix(lastChecked, 0),
	}, nil
}
