package objectsurface

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thisdougb/telemetryd/internal/bus"
	"github.com/thisdougb/telemetryd/internal/collect"
	"github.com/thisdougb/telemetryd/internal/idcheck"
	"github.com/thisdougb/telemetryd/internal/metric"
	"github.com/thisdougb/telemetryd/internal/reading"
	"github.com/thisdougb/telemetryd/internal/report"
	"github.com/thisdougb/telemetryd/internal/sensor"
	"github.com/thisdougb/telemetryd/internal/sensorid"
	"github.com/thisdougb/telemetryd/internal/storage"
	"github.com/thisdougb/telemetryd/internal/threshold"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := storage.NewMemoryBackend()
	reportMgr := report.NewManager(10, 1000, 1000, 100, idcheck.Limits{}, store, nil)
	triggerMgr := threshold.NewManager(10, idcheck.Limits{}, store, bus.NewPresenceBus(), nil, 3)

	buildMetrics := func(params []report.MetricParam) ([]report.MetricSpec, error) {
		var specs []report.MetricSpec
		for _, p := range params {
			fake := bus.NewFake()
			id := sensorid.ID{Transport: "dbus", Service: "xyz.svc", Path: p.SensorPaths[0]}
			s := sensor.New(id, fake)
			op, _ := collect.ParseOperation(p.OperationType)
			scope, _ := collect.ParseTimeScope(p.CollectionTimeScope)
			m, err := metric.New(p.ID, p.Metadata, op, scope, p.CollectionDuration, []*sensor.Handle{s})
			if err != nil {
				return nil, err
			}
			specs = append(specs, report.MetricSpec{Metric: m, SensorPaths: p.SensorPaths})
		}
		return specs, nil
	}
	resolveSensor := func(service, path string) (threshold.SensorSpec, error) {
		fake := bus.NewFake()
		id := sensorid.ID{Transport: "dbus", Service: service, Path: path}
		return threshold.SensorSpec{Path: path, Handle: sensor.New(id, fake)}, nil
	}

	return NewServer(reportMgr, triggerMgr, buildMetrics, resolveSensor, Config{
		MaxReports: 10, MaxTriggers: 10, PollRateResolutionMs: 1000, MinIntervalMs: 1000,
	})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestAddListGetDeleteReport(t *testing.T) {
	srv := newTestServer(t)

	addResp := doJSON(t, srv, "POST", "/reports", AddReportRequest{
		ID:            "R1",
		Name:          "R1",
		ReportingType: "OnRequest",
		ReportUpdates: "overwrite",
		AppendLimit:   5,
		MetricParams: []report.MetricParam{{
			SensorPaths: []string{"/xyz/sensors/s0"}, OperationType: "single",
			ID: "M1", CollectionTimeScope: "point",
		}},
	})
	if addResp.Code != 201 {
		t.Fatalf("add status = %d, body = %s", addResp.Code, addResp.Body.String())
	}

	listResp := doJSON(t, srv, "GET", "/reports", nil)
	if listResp.Code != 200 {
		t.Fatalf("list status = %d", listResp.Code)
	}

	getResp := doJSON(t, srv, "GET", "/reports/R1", nil)
	if getResp.Code != 200 {
		t.Fatalf("get status = %d, body = %s", getResp.Code, getResp.Body.String())
	}
	var view ReportView
	if err := json.Unmarshal(getResp.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Name != "R1" {
		t.Fatalf("view.Name = %q, want R1", view.Name)
	}

	delResp := doJSON(t, srv, "DELETE", "/reports/R1", nil)
	if delResp.Code != 204 {
		t.Fatalf("delete status = %d", delResp.Code)
	}

	getAfterDelete := doJSON(t, srv, "GET", "/reports/R1", nil)
	if getAfterDelete.Code != 404 {
		t.Fatalf("get after delete status = %d, want 404", getAfterDelete.Code)
	}
}

func TestAddReportRejectsDuplicateID(t *testing.T) {
	srv := newTestServer(t)
	req := AddReportRequest{
		ID: "R1", Name: "R1", ReportingType: "OnRequest", ReportUpdates: "overwrite", AppendLimit: 5,
		MetricParams: []report.MetricParam{{SensorPaths: []string{"/xyz/sensors/s0"}, OperationType: "single", ID: "M1", CollectionTimeScope: "point"}},
	}
	doJSON(t, srv, "POST", "/reports", req)
	resp := doJSON(t, srv, "POST", "/reports", req)
	if resp.Code != 409 {
		t.Fatalf("duplicate add status = %d, want 409", resp.Code)
	}
}

func TestAddListGetDeleteTrigger(t *testing.T) {
	srv := newTestServer(t)

	addResp := doJSON(t, srv, "POST", "/triggers", AddTriggerRequest{
		ID:   "T1",
		Name: "T1",
		Sensors: []threshold.SensorParam{{Service: "xyz.svc", Path: "/xyz/sensors/s0"}},
		NumericParams: []threshold.NumericParam{{
			Type: "upperCritical", Direction: "either", DwellTime: 0, Value: 50,
		}},
	})
	if addResp.Code != 201 {
		t.Fatalf("add trigger status = %d, body = %s", addResp.Code, addResp.Body.String())
	}

	getResp := doJSON(t, srv, "GET", "/triggers/T1", nil)
	if getResp.Code != 200 {
		t.Fatalf("get trigger status = %d", getResp.Code)
	}

	delResp := doJSON(t, srv, "DELETE", "/triggers/T1", nil)
	if delResp.Code != 204 {
		t.Fatalf("delete trigger status = %d", delResp.Code)
	}
}

func TestReadingsUpdateWebhookFires(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, "POST", "/reports", AddReportRequest{
		ID: "R1", Name: "R1", ReportingType: "OnRequest", ReportUpdates: "overwrite", AppendLimit: 5,
		MetricParams: []report.MetricParam{{SensorPaths: []string{"/xyz/sensors/s0"}, OperationType: "single", ID: "M1", CollectionTimeScope: "point"}},
	})

	received := make(chan []byte, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
	}))
	defer upstream.Close()

	subResp := doJSON(t, srv, "POST", "/reports/R1/subscribers", subscriberRequest{URL: upstream.URL})
	if subResp.Code != 204 {
		t.Fatalf("subscribe status = %d", subResp.Code)
	}

	srv.OnReadingsUpdate("R1", reading.Snapshot{TimestampMs: 100, Readings: []reading.Data{{MetricID: "M1", Value: 1}}})

	select {
	case body := <-received:
		var snap reading.Snapshot
		if err := json.Unmarshal(body, &snap); err != nil {
			t.Fatal(err)
		}
		if snap.TimestampMs != 100 {
			t.Fatalf("snap.TimestampMs = %d, want 100", snap.TimestampMs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}
}
