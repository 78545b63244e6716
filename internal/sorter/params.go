package sorter

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// ReadParams parses the sorter's params.py-style key = value file into a
// string map. Values keep their literal form minus surrounding quotes.
func ReadParams(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	params := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		params[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return params, nil
}

// SampleRateFromParams extracts sample_rate, defaulting to 30 kHz when the
// key is absent or unparseable.
func SampleRateFromParams(params map[string]string) float64 {
	const def = 30000.0
	v, ok := params["sample_rate"]
	if !ok {
		return def
	}
	fs, err := strconv.ParseFloat(v, 64)
	if err != nil || fs <= 0 {
		return def
	}
	return fs
}
