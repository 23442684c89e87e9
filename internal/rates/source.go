package rates

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// Source fetches a fresh snapshot of rates quoted against base.
type Source interface {
	Name() string
	FetchRates(ctx context.Context, base string) (*models.RateSnapshot, error)
}

// FetchError is returned by a Source when the remote call fails, answers with
// a non-2xx status or returns a body that cannot be used.
type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rates: fetch from %s failed with status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("rates: fetch from %s failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

const (
	DefaultERAPIURL = "https://open.er-api.com/v6/latest"
	DefaultTCMBURL  = "https://www.tcmb.gov.tr/kurlar/today.xml"
)

// get performs a GET and returns the body of a 2xx response.
func get(ctx context.Context, client *http.Client, source, url, accept string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	req.Header.Set("Accept", accept)
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &FetchError{Source: source, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Source: source, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return body, nil
}

// ERAPISource reads open.er-api.com, which quotes how many units of each
// currency one unit of base buys. Rates are inverted to "1 unit = N base" and
// rounded to four decimals.
type ERAPISource struct {
	URL    string
	Client *http.Client
}

func (s *ERAPISource) Name() string { return "erapi" }

type erapiResponse struct {
	Result             string             `json:"result"`
	ErrorType          string             `json:"error-type"`
	BaseCode           string             `json:"base_code"`
	TimeLastUpdateUnix int64              `json:"time_last_update_unix"`
	Rates              map[string]float64 `json:"rates"`
}

func (s *ERAPISource) FetchRates(ctx context.Context, base string) (*models.RateSnapshot, error) {
	base = models.NormalizeCurrency(base)
	url := s.URL
	if url == "" {
		url = DefaultERAPIURL
	}
	body, err := get(ctx, s.Client, s.Name(), strings.TrimRight(url, "/")+"/"+base, "application/json")
	if err != nil {
		return nil, err
	}

	var payload erapiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if payload.Result != "success" {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("result %q: %s", payload.Result, payload.ErrorType)}
	}

	one := decimal.NewFromInt(1)
	rates := make(map[string]float64, len(payload.Rates))
	for code, quoted := range payload.Rates {
		code = models.NormalizeCurrency(code)
		if quoted <= 0 || code == base {
			continue
		}
		inverted := one.Div(decimal.NewFromFloat(quoted)).Round(4)
		if inverted.IsPositive() {
			rates[code] = inverted.InexactFloat64()
		}
	}
	if len(rates) == 0 {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("no usable rates in response")}
	}

	asOf := time.Now().UTC()
	if payload.TimeLastUpdateUnix > 0 {
		asOf = time.Unix(payload.TimeLastUpdateUnix, 0).UTC()
	}
	return &models.RateSnapshot{Base: base, Rates: rates, Source: s.Name(), AsOf: asOf}, nil
}

// TCMBSource reads the Turkish central bank's daily bulletin. It only quotes
// against TRY and uses the ForexSelling column, divided by the quoted unit.
type TCMBSource struct {
	URL    string
	Client *http.Client
}

func (s *TCMBSource) Name() string { return "tcmb" }

type tcmbBulletin struct {
	XMLName    xml.Name       `xml:"Tarih_Date"`
	Date       string         `xml:"Date,attr"`
	Currencies []tcmbCurrency `xml:"Currency"`
}

type tcmbCurrency struct {
	Code         string `xml:"CurrencyCode,attr"`
	Unit         string `xml:"Unit"`
	ForexSelling string `xml:"ForexSelling"`
}

// bulletinLocation is the zone TCMB dates are published in.
var bulletinLocation = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		return time.FixedZone("TRT", 3*60*60)
	}
	return loc
}()

func (s *TCMBSource) FetchRates(ctx context.Context, base string) (*models.RateSnapshot, error) {
	base = models.NormalizeCurrency(base)
	if base != "TRY" {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("only TRY is quoted, not %s", base)}
	}
	url := s.URL
	if url == "" {
		url = DefaultTCMBURL
	}
	body, err := get(ctx, s.Client, s.Name(), url, "application/xml, text/xml, */*")
	if err != nil {
		return nil, err
	}

	var bulletin tcmbBulletin
	if err := xml.Unmarshal(body, &bulletin); err != nil {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("parse bulletin: %w", err)}
	}

	rates := make(map[string]float64, len(bulletin.Currencies))
	for _, c := range bulletin.Currencies {
		selling, err := decimal.NewFromString(strings.TrimSpace(c.ForexSelling))
		if err != nil || !selling.IsPositive() {
			continue
		}
		unit := decimal.NewFromInt(1)
		if u, err := decimal.NewFromString(strings.TrimSpace(c.Unit)); err == nil && u.IsPositive() {
			unit = u
		}
		rates[models.NormalizeCurrency(c.Code)] = selling.Div(unit).Round(4).InexactFloat64()
	}
	if _, ok := rates["USD"]; !ok {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("bulletin has no USD rate")}
	}
	if _, ok := rates["EUR"]; !ok {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("bulletin has no EUR rate")}
	}

	asOf := time.Now().UTC()
	if d, err := time.ParseInLocation("01/02/2006", bulletin.Date, bulletinLocation); err == nil {
		asOf = d.UTC()
	}
	return &models.RateSnapshot{Base: base, Rates: rates, Source: s.Name(), AsOf: asOf}, nil
}

// NewSource returns the source registered under name.
func NewSource(name, url string, client *http.Client) (Source, error) {
	switch strings.ToLower(name) {
	case "", "erapi":
		return &ERAPISource{URL: url, Client: client}, nil
	case "tcmb":
		return &TCMBSource{URL: url, Client: client}, nil
	default:
		return nil, fmt.Errorf("unknown rate source %q", name)
	}
}
