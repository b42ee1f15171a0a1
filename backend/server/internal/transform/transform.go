// Package transform converts a cached upstream report payload into the output
// formats served by the public endpoint. Payloads follow the upstream
// reporting shape: a columnHeaders array describing each column plus a rows
// array of string values.
package transform

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/reportproxy/reportproxy/shared"
)

var ErrUnsupportedFormat = errors.New("unsupported output format")

// Private payload properties removed when a query is anonymized. A colon
// separates path segments for nested keys.
var PrivateProperties = []string{"id", "query:ids", "selfLink", "nextLink", "profileInfo"}

var callbackNameRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

const unknownLabel = "UNKNOWN"

// Maps upstream column data types to the type names a charting frontend
// expects.
var jsDataTypes = map[string]string{
	"STRING":   "string",
	"INTEGER":  "number",
	"FLOAT":    "number",
	"CURRENCY": "number",
}

type columnHeader struct {
	Name       string `json:"name"`
	ColumnType string `json:"columnType"`
	DataType   string `json:"dataType"`
}

type reportPayload struct {
	ColumnHeaders []columnHeader `json:"columnHeaders"`
	Rows          [][]string     `json:"rows"`
}

// Transform renders payload in the requested format. The payload is served
// exactly as cached for json; tabular formats are derived from its
// columnHeaders and rows.
func Transform(payload []byte, format string) ([]byte, error) {
	switch format {
	case shared.FormatJson:
		return payload, nil
	case shared.FormatCsv:
		return renderDelimited(payload, ',')
	case shared.FormatTsv:
		return renderDelimited(payload, '\t')
	case shared.FormatDataTable:
		return renderDataTable(payload)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ContentType returns the MIME type for a format, or the script type when the
// body is callback-wrapped.
func ContentType(format string, hasCallback bool) string {
	if hasCallback {
		return "application/javascript"
	}
	switch format {
	case shared.FormatCsv:
		return "text/csv"
	case shared.FormatTsv:
		return "text/tab-separated-values"
	default:
		return "application/json"
	}
}

// WrapCallback wraps body as callbackName(body); for script consumers. The
// name is validated so the wrapped body stays a plain function call.
func WrapCallback(callbackName string, body []byte) ([]byte, error) {
	if !callbackNameRe.MatchString(callbackName) {
		return nil, fmt.Errorf("invalid callback name %#v", callbackName)
	}
	wrapped := make([]byte, 0, len(callbackName)+len(body)+3)
	wrapped = append(wrapped, callbackName...)
	wrapped = append(wrapped, '(')
	wrapped = append(wrapped, body...)
	wrapped = append(wrapped, ')', ';')
	return wrapped, nil
}

func renderDelimited(payload []byte, delimiter rune) ([]byte, error) {
	var report reportPayload
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to parse cached payload: %w", err)
	}
	if len(report.ColumnHeaders) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delimiter

	headers := make([]string, len(report.ColumnHeaders))
	for i, h := range report.ColumnHeaders {
		headers[i] = h.Name
	}
	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}
	for _, row := range report.Rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write data row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}
	return buf.Bytes(), nil
}

// dataTable mirrors the JSON shape a charting frontend's DataTable
// constructor accepts: column descriptors plus per-row cell arrays.
type dataTable struct {
	Cols []dataTableCol `json:"cols"`
	Rows []dataTableRow `json:"rows"`
}

type dataTableCol struct {
	Id    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type dataTableRow struct {
	C []dataTableCell `json:"c"`
}

type dataTableCell struct {
	V any `json:"v"`
}

func renderDataTable(payload []byte) ([]byte, error) {
	var report reportPayload
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to parse cached payload: %w", err)
	}
	if len(report.ColumnHeaders) == 0 {
		return []byte{}, nil
	}

	table := dataTable{Cols: make([]dataTableCol, len(report.ColumnHeaders))}
	for i, h := range report.ColumnHeaders {
		name := h.Name
		if name == "" {
			name = unknownLabel
		}
		jsType, ok := jsDataTypes[h.DataType]
		if !ok {
			jsType = "string"
		}
		table.Cols[i] = dataTableCol{Id: name, Label: name, Type: jsType}
	}
	for _, row := range report.Rows {
		cells := make([]dataTableCell, len(row))
		for i, value := range row {
			if i < len(report.ColumnHeaders) {
				cells[i] = dataTableCell{V: convertValue(value, report.ColumnHeaders[i].DataType)}
			} else {
				cells[i] = dataTableCell{V: value}
			}
		}
		table.Rows = append(table.Rows, dataTableRow{C: cells})
	}

	serialized, err := json.Marshal(table)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize data table: %w", err)
	}
	return serialized, nil
}

func convertValue(value, dataType string) any {
	switch dataType {
	case "INTEGER":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	case "FLOAT", "CURRENCY":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return value
}

// RemoveKeys strips the private properties from a cached payload. It is
// applied once, at cache-write time, so cached bytes and served bytes never
// diverge. Missing keys are skipped.
func RemoveKeys(payload []byte, keysToRemove []string) ([]byte, error) {
	var content map[string]any
	if err := json.Unmarshal(payload, &content); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	for _, keyPath := range keysToRemove {
		segments := strings.Split(keyPath, ":")
		parent := content
		for i := 0; i < len(segments)-1; i++ {
			child, ok := parent[segments[i]].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = child
		}
		if parent != nil {
			delete(parent, segments[len(segments)-1])
		}
	}
	serialized, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	return serialized, nil
}

// Anonymize applies the default private-property removal.
func Anonymize(payload []byte) ([]byte, error) {
	return RemoveKeys(payload, PrivateProperties)
}
