package util

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
)

// SaveJson marshals data to path, creating parent directories as needed.
func SaveJson(path string, data interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	bs, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = file.Write(bs)
	return err
}

// ReadJsonLines decodes a JSON-lines file into one map per line.
func ReadJsonLines(path string) ([]map[string]interface{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		entry := make(map[string]interface{})
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, scanner.Err()
}
