// Package gsheets keeps the product table in a google sheets tab through the
// sheets v4 REST api.
package gsheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"catalogsync-backend/internal/sink"
	"catalogsync-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("catalogsync.internal.sink.gsheets")

const DefaultEndpoint = "https://sheets.googleapis.com"

type Config struct {
	SpreadsheetID      string `json:"spreadsheet_id"`
	Tab                string `json:"tab"`
	ServiceAccountFile string `json:"service_account_file"`
	// Endpoint overrides the sheets api base url.
	Endpoint string `json:"endpoint"`
}

type Table struct {
	http          *resty.Client
	tokens        *tokenSource
	spreadsheetID string
	tab           string
}

func NewTable(config Config) (*Table, error) {
	if config.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is not configured")
	}
	if config.Tab == "" {
		config.Tab = "Products"
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	account, err := ReadServiceAccount(config.ServiceAccountFile)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(config.Endpoint)
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(3)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
	})
	telemetry.InstrumentResty(client, "catalogsync.internal.sink.gsheets/http")

	return &Table{
		http: client,
		tokens: &tokenSource{
			account: account,
			http:    resty.New().SetTimeout(30 * time.Second),
			now:     time.Now,
		},
		spreadsheetID: config.SpreadsheetID,
		tab:           config.Tab,
	}, nil
}

func (t *Table) a1(cell string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(t.tab, "'", "''"), cell)
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (t *Table) request(ctx context.Context) (*resty.Request, *apiError, error) {
	token, err := t.tokens.Token(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("authorize: %w", err)
	}
	resErr := &apiError{}
	req := t.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParam("spreadsheet", t.spreadsheetID).
		SetError(resErr)
	return req, resErr, nil
}

func check(res *resty.Response, resErr *apiError, err error) error {
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("sheets api %d %s: %s", res.StatusCode(), resErr.Error.Status, resErr.Error.Message)
	}
	return nil
}

type valueRange struct {
	Range  string  `json:"range,omitempty"`
	Values [][]any `json:"values"`
}

func cellString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strings.ToUpper(strconv.FormatBool(v))
	default:
		return fmt.Sprint(v)
	}
}

func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	ctx, span := tracer.Start(ctx, "ReadAll")
	defer span.End()

	req, resErr, err := t.request(ctx)
	if err != nil {
		return nil, err
	}
	var body valueRange
	res, err := req.
		SetPathParam("range", t.a1("A:ZZ")).
		SetQueryParam("valueRenderOption", "FORMULA").
		SetQueryParam("majorDimension", "ROWS").
		SetResult(&body).
		Get("/v4/spreadsheets/{spreadsheet}/values/{range}")
	err = check(res, resErr, err)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, len(body.Values))
	for i, row := range body.Values {
		rows[i] = make([]string, len(row))
		for j, value := range row {
			rows[i][j] = cellString(value)
		}
	}
	return rows, nil
}

func toValues(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = make([]any, len(row))
		for j, value := range row {
			out[i][j] = value
		}
	}
	return out
}

func (t *Table) Append(ctx context.Context, rows [][]string) error {
	ctx, span := tracer.Start(ctx, "Append")
	defer span.End()

	req, resErr, err := t.request(ctx)
	if err != nil {
		return err
	}
	res, err := req.
		SetPathParam("range", t.a1("A1")).
		SetQueryParam("valueInputOption", "USER_ENTERED").
		SetQueryParam("insertDataOption", "INSERT_ROWS").
		SetBody(valueRange{Values: toValues(rows)}).
		Post("/v4/spreadsheets/{spreadsheet}/values/{range}:append")
	return check(res, resErr, err)
}

type batchUpdate struct {
	ValueInputOption string       `json:"valueInputOption"`
	Data             []valueRange `json:"data"`
}

func (t *Table) Update(ctx context.Context, cells []sink.Cell) error {
	ctx, span := tracer.Start(ctx, "Update")
	defer span.End()

	if len(cells) == 0 {
		return nil
	}
	body := batchUpdate{ValueInputOption: "USER_ENTERED"}
	for _, cell := range cells {
		body.Data = append(body.Data, valueRange{
			Range:  t.a1(fmt.Sprintf("%s%d", sink.ColumnName(cell.Column), cell.Row+1)),
			Values: [][]any{{cell.Value}},
		})
	}

	req, resErr, err := t.request(ctx)
	if err != nil {
		return err
	}
	res, err := req.
		SetBody(body).
		Post("/v4/spreadsheets/{spreadsheet}/values:batchUpdate")
	return check(res, resErr, err)
}
