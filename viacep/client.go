package viacep

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

type Client struct {
	cepBaseURL  string
	ibgeBaseURL string
	http        *retryablehttp.Client
	limiter     *rate.Limiter
}

func NewClient() *Client {
	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = 4 * time.Second
	rc.Logger = nil

	return &Client{
		cepBaseURL:  "https://viacep.com.br/ws",
		ibgeBaseURL: "https://servicodados.ibge.gov.br/api/v1/localidades/municipios",
		http:        rc,
		limiter:     rate.NewLimiter(rate.Limit(10), 20), // public service, be polite
	}
}

// Lookup resolves a postal code to address facts. A malformed code, an
// unknown code, or a service failure all yield (nil, err-or-nil) with no
// partial result; callers treat nil as "no enrichment". The supplemental
// IBGE municipality call is best-effort: when it succeeds its canonical
// city and state names win over the ViaCEP values, when it fails the
// ViaCEP values stand.
func (c *Client) Lookup(ctx context.Context, postalCode string) (*Address, error) {
	cep := digitsOnly(postalCode)
	if len(cep) != 8 {
		return nil, nil
	}

	var body cepResponse
	found, err := c.getJSON(ctx, fmt.Sprintf("%s/%s/json/", c.cepBaseURL, cep), &body)
	if err != nil {
		return nil, err
	}
	if !found || bool(body.Erro) {
		return nil, nil
	}

	addr := &Address{
		Street:       strings.TrimSpace(body.Logradouro),
		Neighborhood: strings.TrimSpace(body.Bairro),
		CityName:     strings.TrimSpace(body.Localidade),
		StateAbbr:    strings.ToUpper(strings.TrimSpace(body.UF)),
		PostalCode:   cep[:5] + "-" + cep[5:],
	}

	if body.IBGE != "" {
		var muni municipioResponse
		if ok, err := c.getJSON(ctx, fmt.Sprintf("%s/%s", c.ibgeBaseURL, body.IBGE), &muni); err == nil && ok {
			if muni.Nome != "" {
				addr.CityName = muni.Nome
			}
			if muni.Microrregiao.Mesorregiao.UF.Nome != "" {
				addr.StateName = muni.Microrregiao.Mesorregiao.UF.Nome
			}
			if muni.Microrregiao.Mesorregiao.UF.Sigla != "" {
				addr.StateAbbr = strings.ToUpper(muni.Microrregiao.Mesorregiao.UF.Sigla)
			}
		}
	}
	return addr, nil
}

// getJSON reports found=false for a non-success status, which the lookup
// services use for unknown codes.
func (c *Client) getJSON(ctx context.Context, u string, out any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
