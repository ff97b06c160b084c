package cleanup

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/wasilibs/go-re2"
)

// logName matches files created by workers.LogPath, including lumberjack
// backups of them.
var logName = re2.MustCompile(`^(\d{12})_(\d+)(-[0-9T.:-]+)?\.log(\.gz)?$`)

// LogFile describes one worker log file.
type LogFile struct {
	Path    string
	Pid     int
	Size    int64
	ModTime time.Time
}

// ListLogs returns the worker log files in dir, newest first. Other files
// are ignored.
func ListLogs(dir string) ([]LogFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var logs []LogFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := logName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		pid, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logs = append(logs, LogFile{
			Path:    filepath.Join(dir, entry.Name()),
			Pid:     pid,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].ModTime.After(logs[j].ModTime)
	})
	return logs, nil
}
