package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRecorder_FlushOutput(t *testing.T) {
	var buf bytes.Buffer

	rec := NewWithWriter("SpeechEnhancer", &buf)
	rec.Dimension("Operation", "upload")
	rec.Metric("LatencyMs", 1234.5, UnitMilliseconds)
	rec.Metric("CallCount", 1, UnitCount)
	rec.Property("sessionId", "abc-123")
	rec.Flush()

	output := buf.String()

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsDir, ok := doc["_aws"]
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	awsMap, ok := awsDir.(map[string]interface{})
	if !ok {
		t.Fatal("_aws directive is not a map")
	}

	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}

	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}

	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != "SpeechEnhancer" {
		t.Errorf("expected namespace SpeechEnhancer, got %v", cw["Namespace"])
	}

	if doc["Operation"] != "upload" {
		t.Errorf("expected Operation=upload, got %v", doc["Operation"])
	}
	if doc["LatencyMs"] != 1234.5 {
		t.Errorf("expected LatencyMs=1234.5, got %v", doc["LatencyMs"])
	}
	if doc["CallCount"] != float64(1) {
		t.Errorf("expected CallCount=1, got %v", doc["CallCount"])
	}
	if doc["sessionId"] != "abc-123" {
		t.Errorf("expected sessionId=abc-123, got %v", doc["sessionId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("Test", &buf).Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_Count(t *testing.T) {
	rec := New("Test")
	rec.Count("Errors")

	if v, ok := rec.values["Errors"]; !ok || v != float64(1) {
		t.Errorf("expected Errors=1, got %v", v)
	}
	if m, ok := rec.metrics["Errors"]; !ok || m.Unit != UnitCount {
		t.Errorf("expected unit Count, got %v", m.Unit)
	}
}

func TestRecorder_Chaining(t *testing.T) {
	rec := New("Test").
		Dimension("Op", "test").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "test" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != float64(1) {
		t.Error("chaining Count failed")
	}
	if rec.properties["id"] != "xyz" {
		t.Error("chaining Property failed")
	}
}

func TestRecordJob(t *testing.T) {
	var buf bytes.Buffer
	RecordJob(&buf, "", JobSample{
		SessionID: "s-1",
		JobID:     "j-1",
		Outcome:   "failed",
		ErrorKind: "timeout",
		Attempts:  30,
		Duration:  15 * time.Second,
	})

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output: %v", err)
	}
	if doc["Outcome"] != "failed" {
		t.Errorf("expected Outcome=failed, got %v", doc["Outcome"])
	}
	if doc["PollAttempts"] != float64(30) {
		t.Errorf("expected PollAttempts=30, got %v", doc["PollAttempts"])
	}
	if doc["JobDurationMs"] != float64(15000) {
		t.Errorf("expected JobDurationMs=15000, got %v", doc["JobDurationMs"])
	}
	if doc["errorKind"] != "timeout" {
		t.Errorf("expected errorKind=timeout, got %v", doc["errorKind"])
	}
	cw := doc["_aws"].(map[string]interface{})["CloudWatchMetrics"].([]interface{})[0].(map[string]interface{})
	if cw["Namespace"] != DefaultNamespace {
		t.Errorf("expected default namespace, got %v", cw["Namespace"])
	}
}

func TestRecordJobWithoutDuration(t *testing.T) {
	var buf bytes.Buffer
	RecordJob(&buf, "Custom", JobSample{Outcome: "completed", Attempts: 5})

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("failed to parse EMF output: %v", err)
	}
	if _, ok := doc["JobDurationMs"]; ok {
		t.Error("expected no duration metric without timestamps")
	}
	if _, ok := doc["jobId"]; ok {
		t.Error("expected no jobId property when empty")
	}
}
