package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/mohammad-safakhou/spikeline/internal/artifact"
	"github.com/mohammad-safakhou/spikeline/internal/isolation"
	"github.com/mohammad-safakhou/spikeline/internal/store"
)

func artifactForIso(sessionID, rec, dir string) store.Artifact {
	return store.Artifact{
		SessionID:   sessionID,
		RecordingID: rec,
		ClusterID:   -1,
		Kind:        "iso_subset",
		Path:        dir,
		Fingerprint: artifact.Fingerprint(dir + "/meta.json"),
	}
}

// IsoUnitsForRecording scans the recording's isolation containers for
// curated verdicts and appends the isolated-subset fields to the
// spike-stream container.
func (p *Pipeline) IsoUnitsForRecording(ctx context.Context, rec string) error {
	dir := p.Session.SpikeStreamDir(rec)
	ss, err := artifact.ReadSpikeStream(dir)
	if err != nil {
		return fmt.Errorf("read spike stream: %w", err)
	}

	seen := make(map[int64]bool)
	var results []*isolation.Result
	for _, c := range ss.ClusterIDs {
		if seen[c] {
			continue
		}
		seen[c] = true
		res, err := artifact.ReadIsolation(p.Session.IsolationFile(rec, c))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			p.Logger.Printf("warn: recording %s cluster %d: %v", rec, c, err)
			continue
		}
		results = append(results, res)
	}

	iso := isolation.SelectIsolated(results)
	isoTimes, isoClusters := iso.FilterStream(ss.SpikeTimes, ss.ClusterIDs)
	isoCluInfo := iso.FilterClusterTable(ss.CluInfo)

	if err := artifact.AppendIsolated(dir, isoTimes, isoClusters, isoCluInfo); err != nil {
		return fmt.Errorf("append isolated fields: %w", err)
	}
	p.registerArtifact(ctx, artifactForIso(p.sessionID, rec, dir))
	p.Logger.Printf("recording %s: %d isolated units, %d spikes", rec, len(iso), len(isoTimes))
	return nil
}
