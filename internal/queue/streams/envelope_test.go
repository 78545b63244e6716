package streams

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		EventID:        "evt-1",
		EventType:      "cluster.job",
		PayloadVersion: "v1",
		OccurredAt:     time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Data:           json.RawMessage(`{"cluster_id": 3}`),
	}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := UnmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if got.EventID != "evt-1" || got.EventType != "cluster.job" {
		t.Fatalf("envelope = %+v", got)
	}
	var payload struct {
		ClusterID int64 `json:"cluster_id"`
	}
	if err := json.Unmarshal(got.Data, &payload); err != nil || payload.ClusterID != 3 {
		t.Fatalf("payload = %+v %v", payload, err)
	}
}

func TestEnvelopeValidation(t *testing.T) {
	env := Envelope{EventType: "cluster.job", PayloadVersion: "v1", Data: json.RawMessage(`{}`)}
	if err := env.ValidateBasic(); err == nil {
		t.Fatalf("missing event_id must fail")
	}
	env.EventID = "evt"
	if err := env.ValidateBasic(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}
	if env.OccurredAt.IsZero() {
		t.Fatalf("ValidateBasic must stamp occurred_at")
	}

	env.Data = nil
	if err := env.ValidateBasic(); err == nil {
		t.Fatalf("missing data must fail")
	}
}
