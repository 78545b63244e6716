package sorter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ClusterGroupFiles is the label file precedence inside a sorter output
// directory: manual-curation files first (cluster_group.tsv wins over the
// legacy cluster_groups.csv when both exist), the sorter's auto labels in
// cluster_KSLabel.tsv only when neither curation file is present.
var ClusterGroupFiles = []string{
	"cluster_group.tsv",
	"cluster_groups.csv",
	"cluster_KSLabel.tsv",
}

// ReadClusterGroups reads a tab- or comma-separated cluster label file.
// Header rows and malformed lines are skipped.
func ReadClusterGroups(path string) (ids []int64, labels []Label, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(strings.ReplaceAll(line, ",", "\t"), "\t")
		if len(parts) < 2 {
			continue
		}
		id, convErr := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if convErr != nil {
			continue // header row
		}
		ids = append(ids, id)
		labels = append(labels, ParseLabel(strings.ToLower(strings.TrimSpace(parts[1]))))
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return ids, labels, nil
}
