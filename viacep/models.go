package viacep

import "encoding/json"

// Address is the normalized result of a postal-code lookup. Empty string
// means the service did not report the field.
type Address struct {
    Street       string
    Neighborhood string
    CityName     string
    StateName    string
    StateAbbr    string
    PostalCode   string
}

// boolish accepts the bool and string encodings ViaCEP has used for its
// "erro" flag over the years.
type boolish bool

func (b *boolish) UnmarshalJSON(data []byte) error {
    if string(data) == "null" {
        *b = false
        return nil
    }
    if len(data) > 0 && data[0] == '"' {
        var s string
        if err := json.Unmarshal(data, &s); err != nil { return err }
        *b = boolish(s == "true" || s == "1")
        return nil
    }
    var v bool
    if err := json.Unmarshal(data, &v); err != nil { return err }
    *b = boolish(v)
    return nil
}

type cepResponse struct {
    Cep        string  `json:"cep"`
    Logradouro string  `json:"logradouro"`
    Bairro     string  `json:"bairro"`
    Localidade string  `json:"localidade"`
    UF         string  `json:"uf"`
    IBGE       string  `json:"ibge"`
    Erro       boolish `json:"erro"`
}

type municipioResponse struct {
    Nome         string `json:"nome"`
    Microrregiao struct {
        Mesorregiao struct {
            UF struct {
                Sigla string `json:"sigla"`
                Nome  string `json:"nome"`
            } `json:"UF"`
        } `json:"mesorregiao"`
    } `json:"microrregiao"`
}
