package models

// NormalizedAddress — очищенный адрес из сервиса нормализации.
// Иммутабельный value object: один раз получили по сырой строке и закэшировали.
type NormalizedAddress struct {
	Source string `json:"source"`
	Result string `json:"result"`

	PostalCode string `json:"postal_code,omitempty"`

	Region         string `json:"region,omitempty"`
	RegionType     string `json:"region_type,omitempty"`
	RegionWithType string `json:"region_with_type,omitempty"`

	City         string `json:"city,omitempty"`
	CityWithType string `json:"city_with_type,omitempty"`

	Settlement         string `json:"settlement,omitempty"`
	SettlementWithType string `json:"settlement_with_type,omitempty"`

	Street         string `json:"street,omitempty"`
	StreetWithType string `json:"street_with_type,omitempty"`
	House          string `json:"house,omitempty"`
	Flat           string `json:"flat,omitempty"`

	KladrID     string `json:"kladr_id,omitempty"`
	CityKladrID string `json:"city_kladr_id,omitempty"`
	FiasID      string `json:"fias_id,omitempty"`
	FiasLevel   int    `json:"fias_level,string,omitempty"`

	GeoLat string `json:"geo_lat,omitempty"`
	GeoLon string `json:"geo_lon,omitempty"`
}

func (a NormalizedAddress) IsEmpty() bool {
	return a.Result == "" && a.City == "" && a.Region == "" && a.Settlement == ""
}

// CityName — имя города для поиска терминалов и расчёта доставки.
// Город может отсутствовать, тогда берём населённый пункт.
func (a NormalizedAddress) CityName() string {
	if a.City != "" {
		return a.City
	}
	return a.Settlement
}

// CityOnly — адрес определился только до города, улицы нет.
// Такой адрес недостаточно точен для курьерской доставки.
func (a NormalizedAddress) CityOnly() bool {
	return (a.City != "" || a.Region != "" || a.Settlement != "") && a.Street == ""
}
