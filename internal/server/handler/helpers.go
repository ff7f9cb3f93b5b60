package handler

import (
	"encoding/json"
	"net/http"

	"github.com/openfolio/marketd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// assetTypeParam parses the "type" query parameter. Absent means stock.
func assetTypeParam(r *http.Request) (domain.AssetType, error) {
	v := r.URL.Query().Get("type")
	if v == "" {
		return domain.AssetStock, nil
	}
	return domain.ParseAssetType(v)
}

// currencyParam parses the "currency" query parameter. Absent means USD.
func currencyParam(r *http.Request) string {
	v := r.URL.Query().Get("currency")
	if v == "" {
		return "USD"
	}
	return domain.NormalizeCurrency(v)
}
