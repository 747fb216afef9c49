package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hatlabs/halpid/internal/api"
	"github.com/hatlabs/halpid/internal/config"
	"github.com/hatlabs/halpid/internal/device"
	"github.com/hatlabs/halpid/internal/hardware"
	"github.com/hatlabs/halpid/internal/protocol"
)

func newTestRouter(t *testing.T) (http.Handler, *hardware.MockTransport) {
	t.Helper()
	m := hardware.NewMockTransport()
	dev := device.New(m)
	owner := device.NewOwner(dev)
	watcher, err := config.NewWatcher("", config.Default())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return api.NewRouter(owner, watcher, "1.2.3"), m
}

func seedMeasurements(m *hardware.MockTransport) {
	m.SetReg(protocol.RegDCInVoltage, protocol.EncodeWord(protocol.FloatToAnalogWord(19.5, protocol.DCInFullScaleVolts)))
	m.SetReg(protocol.RegSupercapVoltage, protocol.EncodeWord(protocol.FloatToAnalogWord(9.9, protocol.SupercapFullScaleVolts)))
	m.SetReg(protocol.RegInputCurrent, protocol.EncodeWord(protocol.FloatToAnalogWord(0.8, protocol.InputCurrentFullScaleA)))
	m.SetReg(protocol.RegMCUTemp, protocol.EncodeWord(protocol.KelvinToAnalogWord(300.0)))
	m.SetReg(protocol.RegPCBTemp, protocol.EncodeWord(protocol.KelvinToAnalogWord(305.0)))
	m.SetReg(protocol.RegWatchdogElapsed, []byte{3})
	m.SetReg(protocol.RegPowerState, []byte{byte(protocol.OperationalSolo)})
	m.SetReg(protocol.RegHardwareVersion, []byte{1, 0, 0, 0xFF})
	m.SetReg(protocol.RegFirmwareVersion, []byte{2, 1, 0, 0xFF})
	m.SetReg(protocol.RegDeviceID, []byte{0, 1, 2, 3, 4, 5, 6, 7})
}

func doRequest(t *testing.T, router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetAllValues(t *testing.T) {
	router, m := newTestRouter(t)
	seedMeasurements(m)

	rec := doRequest(t, router, http.MethodGet, "/values", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["daemon_version"] != "1.2.3" {
		t.Errorf("daemon_version = %v, want 1.2.3", body["daemon_version"])
	}
	if body["hardware_version"] != "1.0.0" {
		t.Errorf("hardware_version = %v, want 1.0.0", body["hardware_version"])
	}
	if body["state"] != "OperationalSolo" {
		t.Errorf("state = %v, want OperationalSolo", body["state"])
	}
}

func TestGetValueUnknownKeyIs404(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/values/nonsense", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["error"]; !ok {
		t.Errorf("body = %v, want an \"error\" key", body)
	}
}

func TestGetValuesMeasurementFailurePropagates500(t *testing.T) {
	router, m := newTestRouter(t)
	m.SetFailNext(100)
	rec := doRequest(t, router, http.MethodGet, "/values", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPut, "/config/led_brightness", []byte("200"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PUT status = %d, want 204: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/config/led_brightness", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	var got float64
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 200 {
		t.Errorf("led_brightness = %v, want 200", got)
	}
}

func TestConfigUnknownKeyIs404BothDirections(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/config/not_a_real_key", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown key status = %d, want 404", rec.Code)
	}
	rec = doRequest(t, router, http.MethodPut, "/config/not_a_real_key", []byte("1"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("PUT unknown key status = %d, want 404", rec.Code)
	}
}

func TestUSBPartialUpdate(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPut, "/usb", []byte(`{"usb0": true, "usb2": true}`))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("PUT /usb status = %d, want 204", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/usb", nil)
	var ports map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &ports); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ports["usb0"] || ports["usb1"] || !ports["usb2"] || ports["usb3"] {
		t.Errorf("usb ports = %+v, want only usb0 and usb2 set", ports)
	}

	// Omitted fields must not reset to false on a second partial update.
	rec = doRequest(t, router, http.MethodPut, "/usb", []byte(`{"usb1": true}`))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("second PUT /usb status = %d, want 204", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/usb", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &ports)
	if !ports["usb0"] || !ports["usb1"] || !ports["usb2"] {
		t.Errorf("usb ports after partial update = %+v, want usb0/1/2 all set", ports)
	}
}

func TestUSBSinglePortOutOfRangeIs400(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPut, "/usb/7", []byte("true"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUSBSinglePortBareBoolBody(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPut, "/usb/2", []byte("true"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, router, http.MethodGet, "/usb/2", nil)
	var got bool
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got {
		t.Error("usb/2 = false, want true")
	}
}

func TestPostShutdown(t *testing.T) {
	router, m := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/shutdown", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	got := m.GetReg(protocol.RegShutdownReq)
	if len(got) != 1 || got[0] != protocol.RequestValue {
		t.Errorf("shutdown register = %v, want [0x01]", got)
	}
}

func TestPostFlashRejectsEmptyBody(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, _ := w.CreateFormFile("firmware", "fw.bin")
	_, _ = fw.Write(nil)
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/flash", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestPostFlashMissingFieldIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("not_firmware", "x")
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/flash", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}
