package tax

import "github.com/noah-isme/candle-checkout/internal/address"

type regionRate struct {
	rate string
	name string
}

type countryRate struct {
	rate        string
	name        string
	description string
}

var countryRates = map[address.Country]countryRate{
	address.MX: {"0.16", "IVA", "Impuesto al Valor Agregado"},
	address.US: {"0.08", "Sales Tax", "State and Local Sales Tax"},
	address.CA: {"0.05", "GST", "Goods and Services Tax"},
}

// Combined state and average local rates. A zero entry is a real zero rate,
// not an absent one.
var usStateRates = map[string]string{
	"AL": "0.04", "AK": "0", "AZ": "0.056", "AR": "0.065", "CA": "0.0725",
	"CO": "0.029", "CT": "0.0635", "DE": "0", "FL": "0.06", "GA": "0.04",
	"HI": "0.04", "ID": "0.06", "IL": "0.0625", "IN": "0.07", "IA": "0.06",
	"KS": "0.065", "KY": "0.06", "LA": "0.0445", "ME": "0.055", "MD": "0.06",
	"MA": "0.0625", "MI": "0.06", "MN": "0.06875", "MS": "0.07", "MO": "0.04225",
	"MT": "0", "NE": "0.055", "NV": "0.0685", "NH": "0", "NJ": "0.06625",
	"NM": "0.05125", "NY": "0.08", "NC": "0.0475", "ND": "0.05", "OH": "0.0575",
	"OK": "0.045", "OR": "0", "PA": "0.06", "RI": "0.07", "SC": "0.06",
	"SD": "0.045", "TN": "0.07", "TX": "0.0625", "UT": "0.0485", "VT": "0.06",
	"VA": "0.053", "WA": "0.065", "WV": "0.06", "WI": "0.05", "WY": "0.04",
}

var caProvinceRates = map[string]regionRate{
	"AB": {"0.05", "GST"},
	"BC": {"0.12", "GST + PST"},
	"MB": {"0.12", "GST + PST"},
	"NB": {"0.15", "HST"},
	"NL": {"0.15", "HST"},
	"NT": {"0.05", "GST"},
	"NS": {"0.15", "HST"},
	"NU": {"0.05", "GST"},
	"ON": {"0.13", "HST"},
	"PE": {"0.15", "HST"},
	"QC": {"0.14975", "GST + QST"},
	"SK": {"0.11", "GST + PST"},
	"YT": {"0.05", "GST"},
}
