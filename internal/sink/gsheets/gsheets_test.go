package gsheets

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/sink"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type fakeSheets struct {
	t           *testing.T
	key         *rsa.PrivateKey
	table       *sink.MemoryTable
	tokenGrants atomic.Int32
}

var cellRegex = regexp.MustCompile(`^'Products'!([A-Z]+)(\d+)$`)

func parseCell(t *testing.T, a1 string) (row, column int) {
	match := cellRegex.FindStringSubmatch(a1)
	require.NotNil(t, match, a1)
	for _, r := range match[1] {
		column = column*26 + int(r-'A'+1)
	}
	row, err := strconv.Atoi(match[2])
	require.NoError(t, err)
	return row - 1, column - 1
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t := f.t
	w.Header().Set("content-type", "application/json")

	if r.URL.Path == "/token" {
		require.NoError(t, r.ParseForm())
		require.Equal(t, jwtBearerGrant, r.Form.Get("grant_type"))
		token, err := jwt.Parse(r.Form.Get("assertion"), func(*jwt.Token) (any, error) {
			return &f.key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		require.NoError(t, err)
		claims := token.Claims.(jwt.MapClaims)
		require.Equal(t, "sync@example.iam.gserviceaccount.com", claims["iss"])
		require.Equal(t, scopeSpreadsheets, claims["scope"])

		f.tokenGrants.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "ya29.test", "expires_in": 3600, "token_type": "Bearer"})
		return
	}

	if r.Header.Get("authorization") != "Bearer ya29.test" {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 401, "message": "invalid credentials", "status": "UNAUTHENTICATED"}})
		return
	}
	require.True(t, strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sheet-1/values"), r.URL.Path)

	switch {
	case r.Method == http.MethodGet:
		require.Equal(t, "FORMULA", r.URL.Query().Get("valueRenderOption"))
		rows, _ := f.table.ReadAll(r.Context())
		values := [][]any{}
		for _, row := range rows {
			var out []any
			for _, value := range row {
				// numbers come back as json numbers
				if n, err := strconv.ParseFloat(value, 64); err == nil {
					out = append(out, n)
				} else {
					out = append(out, value)
				}
			}
			values = append(values, out)
		}
		json.NewEncoder(w).Encode(map[string]any{"range": "'Products'!A1:AF10", "values": values})

	case strings.HasSuffix(r.URL.Path, ":append"):
		require.Equal(t, "USER_ENTERED", r.URL.Query().Get("valueInputOption"))
		var body struct {
			Values [][]string `json:"values"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NoError(t, f.table.Append(r.Context(), body.Values))
		json.NewEncoder(w).Encode(map[string]any{})

	case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		var body struct {
			ValueInputOption string `json:"valueInputOption"`
			Data             []struct {
				Range  string     `json:"range"`
				Values [][]string `json:"values"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "USER_ENTERED", body.ValueInputOption)
		var cells []sink.Cell
		for _, data := range body.Data {
			row, column := parseCell(t, data.Range)
			cells = append(cells, sink.Cell{Row: row, Column: column, Value: data.Values[0][0]})
		}
		require.NoError(t, f.table.Update(r.Context(), cells))
		json.NewEncoder(w).Encode(map[string]any{})

	default:
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
	}
}

func setup(t *testing.T) (*fakeSheets, *Table) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fake := &fakeSheets{t: t, key: key, table: sink.NewMemoryTable()}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	account, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "sync@example.iam.gserviceaccount.com",
		"private_key_id": "kid-1",
		"private_key":    string(keyPEM),
		"token_uri":      server.URL + "/token",
	})
	require.NoError(t, err)
	accountFile := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(accountFile, account, 0600))

	table, err := NewTable(Config{
		SpreadsheetID:      "sheet-1",
		ServiceAccountFile: accountFile,
		Endpoint:           server.URL,
	})
	require.NoError(t, err)
	return fake, table
}

func TestUpsertThroughSheetsAPI(t *testing.T) {
	ctx := context.Background()
	fake, table := setup(t)
	upserter := sink.NewUpserter(table, "https://winediscovery.ru/")
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	record := catalog.FinalRecord{
		Product: catalog.Product{
			Record: catalog.NormalizedRecord{
				Title:         "Коньяк",
				PriceValue:    catalog.Ptr(100.0),
				VolumeL:       catalog.Ptr(0.7),
				PriceCurrency: "RUB",
				SourceURL:     "https://winediscovery.ru/katalog/tovar/1/",
				PageNum:       1,
			},
			Key: catalog.ProductKey{ID: "SKU-1"},
		},
		Timestamp: at,
	}
	require.NoError(t, upserter.Upsert(ctx, record))

	// numbers read back as json numbers must not count as changes
	upserter.Reset()
	require.NoError(t, upserter.Upsert(ctx, record))

	record.Record.PriceValue = catalog.Ptr(250.5)
	require.NoError(t, upserter.Upsert(ctx, record))

	rows := fake.table.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, sink.Columns, rows[0])
	require.Equal(t, "250.5", rows[1][6])
	require.Equal(t, "0.7", rows[1][9])
	require.Equal(t, int32(1), fake.tokenGrants.Load())
}

func TestReadServiceAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_email": "a@b"}`), 0600))
	_, err := ReadServiceAccount(path)
	require.ErrorContains(t, err, "missing client_email or private_key")

	_, err = ReadServiceAccount(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestNewTableRequiresSpreadsheet(t *testing.T) {
	_, err := NewTable(Config{})
	require.Error(t, err)
}
