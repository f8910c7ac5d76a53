package ingestion

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/reconciler/internal/modules/ledger"
)

func TestInferFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		ok       bool
	}{
		{"trades_format1.csv", ledger.FormatCSVTrades, true},
		{"TRADES_FORMAT1.CSV", ledger.FormatCSVTrades, true},
		{"trades_format2.csv", ledger.FormatPipeTrades, true},
		{"custodian_feed.txt", ledger.FormatPipeTrades, true},
		{"bank_positions.yaml", ledger.FormatYAMLBank, true},
		{"bank_positions.yml", ledger.FormatYAMLBank, true},
		{"trades.csv", "", false},
		{"data.json", "", false},
	}

	for _, tt := range tests {
		got, ok := inferFormat(tt.filename)
		assert.Equal(t, tt.ok, ok, "filename %q", tt.filename)
		assert.Equal(t, tt.want, got, "filename %q", tt.filename)
	}
}

func multipartUpload(t *testing.T, filename, fileFormat, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	if fileFormat != "" {
		require.NoError(t, writer.WriteField("file_format", fileFormat))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHandleIngest_Success(t *testing.T) {
	env := newTestEnv(t)
	handler := NewHandler(env.service, zerolog.Nop())

	data := csvHeader + "2026-01-10,ACC001,AAPL,100,185.50,BUY,2026-01-12\n"
	req := multipartUpload(t, "trades_format1.csv", "", data)
	rec := httptest.NewRecorder()

	handler.HandleIngest(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, ledger.FormatCSVTrades, body["file_format"])
	assert.Equal(t, float64(1), body["records_processed"])
	assert.Equal(t, "100.00%", body["success_rate"])
	assert.NotEmpty(t, body["ingestion_id"])
}

func TestHandleIngest_PartialSuccessIs207(t *testing.T) {
	env := newTestEnv(t)
	handler := NewHandler(env.service, zerolog.Nop())

	data := csvHeader +
		"2026-01-10,ACC001,AAPL,100,185.50,BUY,2026-01-12\n" +
		"2026-01-10,ACC001,MSFT,bad,408.00,BUY,2026-01-12\n"
	req := multipartUpload(t, "trades_format1.csv", "", data)
	rec := httptest.NewRecorder()

	handler.HandleIngest(rec, req)

	require.Equal(t, http.StatusMultiStatus, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "partial_success", body["status"])
	assert.Equal(t, float64(1), body["records_failed"])
}

func TestHandleIngest_ExplicitFormatWins(t *testing.T) {
	env := newTestEnv(t)
	handler := NewHandler(env.service, zerolog.Nop())

	data := pipeHeader + "20260110|ACC001|AAPL|100|18550.00|CUSTODIAN_B\n"
	req := multipartUpload(t, "upload.dat", ledger.FormatPipeTrades, data)
	rec := httptest.NewRecorder()

	handler.HandleIngest(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ledger.FormatPipeTrades, body["file_format"])
}

func TestHandleIngest_NoFile(t *testing.T) {
	env := newTestEnv(t)
	handler := NewHandler(env.service, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", nil)
	rec := httptest.NewRecorder()

	handler.HandleIngest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngest_UnknownExtension(t *testing.T) {
	env := newTestEnv(t)
	handler := NewHandler(env.service, zerolog.Nop())

	req := multipartUpload(t, "mystery.json", "", "{}")
	rec := httptest.NewRecorder()

	handler.HandleIngest(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "Could not infer file_format")
}
