package testutils

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"
)

// BackupAndRestoreEnv saves the current value of the given env var and returns
// a function that restores it.
func BackupAndRestoreEnv(k string) func() {
	origValue := os.Getenv(k)
	return func() {
		if origValue == "" {
			os.Unsetenv(k)
		} else {
			os.Setenv(k, origValue)
		}
	}
}

func checkError(err error) {
	if err != nil {
		_, filename, line, _ := runtime.Caller(1)
		_, cf, cl, _ := runtime.Caller(2)
		log.Fatalf("testutils fatal error at %s:%d (caller: %s:%d): %v", filename, line, cf, cl, err)
	}
}

// MakeFakeReportPayload builds a payload in the shape returned by the upstream
// reporting API, with the given number of data rows.
func MakeFakeReportPayload(numRows int) []byte {
	payload := map[string]any{
		"id":       "https://upstream.example.com/data?ids=ga:12345",
		"selfLink": "https://upstream.example.com/data?ids=ga:12345",
		"query": map[string]any{
			"ids":         "ga:12345",
			"start-date":  "2022-10-01",
			"end-date":    "2022-10-18",
			"max-results": 1000,
		},
		"profileInfo": map[string]any{
			"profileId":   "12345",
			"accountId":   "67890",
			"profileName": "All Web Site Data",
		},
		"nextLink": "https://upstream.example.com/data?ids=ga:12345&start-index=1001",
		"columnHeaders": []map[string]any{
			{"name": "ga:country", "columnType": "DIMENSION", "dataType": "STRING"},
			{"name": "ga:visits", "columnType": "METRIC", "dataType": "INTEGER"},
			{"name": "ga:avgTimeOnSite", "columnType": "METRIC", "dataType": "FLOAT"},
		},
	}
	rows := make([][]string, 0, numRows)
	for i := 0; i < numRows; i++ {
		rows = append(rows, []string{
			fmt.Sprintf("Country %d", i),
			strconv.Itoa((i + 1) * 100),
			fmt.Sprintf("%d.5", i),
		})
	}
	payload["rows"] = rows
	serialized, err := json.Marshal(payload)
	checkError(err)
	return serialized
}

// TestLog appends a timestamped line to /tmp/test.log for debugging test runs.
func TestLog(line string) {
	f, err := os.OpenFile("/tmp/test.log", os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	checkError(err)
	defer f.Close()
	_, err = f.WriteString(time.Now().UTC().Format(time.RFC3339) + ": " + line + "\n")
	checkError(err)
}

func IsGithubAction() bool {
	return os.Getenv("GITHUB_ACTION") != ""
}
